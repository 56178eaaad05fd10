// Package export turns simulation results into downloadable artifacts and
// delivers them to files, object storage or HTTP clients.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
)

const (
	// FileName is the name every exported result is offered under.
	FileName = "simulated_data.json"

	// ContentType is the MIME type of exported results.
	ContentType = "application/json"
)

// ErrEmptyResult is returned when there is nothing to export.
var ErrEmptyResult = errors.New("result is empty")

// Artifact is a named, typed blob ready for delivery.
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// NewJSONArtifact pretty-prints raw with two-space indentation and no
// trailing newline.
func NewJSONArtifact(raw []byte) (Artifact, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Artifact{}, ErrEmptyResult
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return Artifact{}, fmt.Errorf("formatting result: %w", err)
	}

	return Artifact{
		Name:        FileName,
		ContentType: ContentType,
		Body:        bytes.TrimRight(buf.Bytes(), "\n"),
	}, nil
}

// WriteHTTP sends the artifact as an attachment.
func (a Artifact) WriteHTTP(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Body)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(a.Body)
	return err
}
