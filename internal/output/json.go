package output

import (
	"encoding/json"
	"io"
)

// JSONWriter writes reports as JSON documents, one per line when compact.
// URLs are written verbatim; '&', '<' and '>' are not escaped.
type JSONWriter struct {
	sink
	pretty bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty bool) *JSONWriter {
	return &JSONWriter{sink: sink{w: w}, pretty: pretty}
}

// WriteReport writes report. Writes after Close are dropped.
func (j *JSONWriter) WriteReport(report *Report) error {
	return j.emit(func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if j.pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(report)
	})
}
