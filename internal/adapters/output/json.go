// Package output renders batch reports for their two audiences: machines
// (stable JSON envelope) and operators (plain table or pterm console).
package output

import (
	"encoding/json"
	"io"

	"fleetops/internal/core/domain"
	"fleetops/internal/platform/errors"
)

// JSONWriter writes the report envelope as indented JSON.
type JSONWriter struct {
	w io.Writer
}

// NewJSONWriter creates a writer emitting to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// Write renders the report. The envelope shape is a wire contract consumed by
// downstream tooling; changes to it are breaking changes.
func (j *JSONWriter) Write(report domain.BatchReport) error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report.Envelope()); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "encode report: %v", err)
	}
	return nil
}
