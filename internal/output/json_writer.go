package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/genricoloni/nowbar/internal/domain"
	"go.uber.org/zap"
)

// JSONWriter writes one JSON object per line and flushes it immediately,
// the format waybar-style status bars read from a custom module.
type JSONWriter struct {
	logger *zap.Logger
	w      *bufio.Writer
	last   []byte
}

// NewJSONWriter creates a writer on top of w
func NewJSONWriter(w io.Writer, logger *zap.Logger) *JSONWriter {
	return &JSONWriter{
		logger: logger,
		w:      bufio.NewWriter(w),
	}
}

// NewStdoutWriter creates a writer for the status bar's stdout pipe
func NewStdoutWriter(logger *zap.Logger) *JSONWriter {
	return NewJSONWriter(os.Stdout, logger)
}

// Write emits r unless it is identical to the previous line
func (j *JSONWriter) Write(r domain.Render) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode terminates the object with a newline
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode render: %w", err)
	}
	line := buf.Bytes()
	if j.last != nil && bytes.Equal(line, j.last) {
		return nil
	}

	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("failed to write render: %w", err)
	}
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush render: %w", err)
	}

	j.last = line
	j.logger.Debug("Render written", zap.ByteString("line", bytes.TrimSpace(line)))
	return nil
}
