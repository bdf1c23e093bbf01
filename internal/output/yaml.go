package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes reports as a YAML stream, one document per report.
type YAMLWriter struct {
	sink
	enc     *yaml.Encoder
	encoded bool // the encoder has started a stream
}

// NewYAMLWriter creates a new YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{sink: sink{w: w}, enc: enc}
}

// WriteReport writes report. Writes after Close are dropped.
func (y *YAMLWriter) WriteReport(report *Report) error {
	return y.emit(func(io.Writer) error {
		y.encoded = true
		return y.enc.Encode(report)
	})
}

// Close ends the YAML stream, if one was started, and closes the
// underlying writer.
func (y *YAMLWriter) Close() error {
	y.mu.Lock()
	if y.closed {
		y.mu.Unlock()
		return nil
	}
	var err error
	if y.encoded {
		err = y.enc.Close()
	}
	y.mu.Unlock()

	if cerr := y.sink.Close(); err == nil {
		err = cerr
	}
	return err
}
