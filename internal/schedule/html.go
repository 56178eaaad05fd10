package schedule

import (
	"html/template"
	"io"
	"time"
)

var weekdays = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
}

var tableTemplate = template.Must(template.New("schedule").Parse(`<style>table{background-color:white;}</style>
<table class="watering-schedule">
  <thead>
    <tr><th></th>{{range .Weekdays}}<th>{{.}}</th>{{end}}</tr>
  </thead>
  <tbody>
{{- range .Rows}}
    <tr><th>{{.Date}}</th>{{range .Cells}}<td>{{if .Label}}{{.Label}} ({{.Time}}){{end}}</td>{{end}}</tr>
{{- end}}
  </tbody>
</table>
`))

type htmlCell struct {
	Label string
	Time  string
}

type htmlRow struct {
	Date  string
	Cells []htmlCell
}

// WriteHTML renders the schedule as a table with one row per date and one
// column per weekday, Sunday first.
func (s *Schedule) WriteHTML(w io.Writer) error {
	data := struct {
		Weekdays []time.Weekday
		Rows     []htmlRow
	}{Weekdays: weekdays}

	for _, d := range s.Days {
		row := htmlRow{Date: d.Date.Format("2006-01-02"), Cells: make([]htmlCell, len(weekdays))}
		row.Cells[d.Weekday] = htmlCell{Label: d.Label(), Time: d.WateringTime}
		data.Rows = append(data.Rows, row)
	}

	return tableTemplate.Execute(w, data)
}
