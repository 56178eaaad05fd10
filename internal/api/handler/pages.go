package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/api/response"
	"github.com/sensorsim/sensorsim/internal/params"
)

// GraphsAsset is the static graph page embedded by the graphs page,
// relative to the public directory.
const GraphsAsset = "graphs/sensor_data.html"

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = map[string]*template.Template{
	"form":   template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/form.html")),
	"graphs": template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/graphs.html")),
}

// PagesHandler serves the console pages and public assets.
type PagesHandler struct {
	static http.Handler
	logger zerolog.Logger
}

// NewPagesHandler creates a PagesHandler serving assets from publicDir under /static/.
func NewPagesHandler(publicDir string, logger zerolog.Logger) *PagesHandler {
	return &PagesHandler{
		static: http.StripPrefix("/static/", http.FileServer(http.Dir(publicDir))),
		logger: logger,
	}
}

// FormPage handles GET / - the simulation form.
func (h *PagesHandler) FormPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "form", map[string]interface{}{
		"Title":        "Simulation",
		"Params":       FormFromContext(r.Context()).Params(),
		"TimeUnits":    params.TimeUnitOptions(),
		"PollingRates": params.PollingRateOptions(),
		"TempMin":      params.TempMin,
		"TempMax":      params.TempMax,
		"HumidityMin":  params.HumidityMin,
		"HumidityMax":  params.HumidityMax,
	})
}

// GraphsPage handles GET /graphs - the generated graph in an iframe.
func (h *PagesHandler) GraphsPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "graphs", map[string]interface{}{
		"Title":    "Graphs",
		"GraphSrc": "/static/" + GraphsAsset,
	})
}

// Static handles GET /static/* - files from the public directory.
// Directory listings are not served.
func (h *PagesHandler) Static(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/") {
		response.NotFound(w, r, "not found")
		return
	}
	h.static.ServeHTTP(w, r)
}

func (h *PagesHandler) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pageTemplates[name].ExecuteTemplate(&buf, name+".html", data); err != nil {
		h.logger.Error().Err(err).Str("page", name).Str("request_id", middleware.GetRequestID(r.Context())).Msg("failed to render page")
		response.InternalError(w, r, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
