package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"netsentry/internal/model"
)

// FileWriter appends alert records to a JSONL file, one record per line.
type FileWriter struct {
	file *os.File
	buf  *bufio.Writer
}

// NewFileWriter opens the file in append mode, creating directories as
// needed.
func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open alert file: %w", err)
	}
	return &FileWriter{file: f, buf: bufio.NewWriter(f)}, nil
}

// WriteRecord appends one JSON line and flushes, so a crash loses at most
// the record being written.
func (w *FileWriter) WriteRecord(rec model.AlertRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal alert record: %w", err)
	}
	if _, err := w.buf.Write(append(data, '\n')); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *FileWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
