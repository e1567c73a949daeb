package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tunelab/hypertune/internal/tuner"
)

// RecordWriter writes trial records to a JSONL file, one record per line.
// It uses buffered I/O for performance and is safe for concurrent use.
type RecordWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewRecordWriter creates a record writer for the given path.
// Parent directories are created as needed. If appendFile is true, new
// records are appended to an existing file.
func NewRecordWriter(path string, appendFile bool) (*RecordWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	var file *os.File
	var err error
	if appendFile {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}

	return &RecordWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024), // 64KB buffer
		path:   path,
	}, nil
}

// Write appends one record to the file.
// The record is buffered and will be written on Flush() or Close().
func (w *RecordWriter) Write(record tuner.TrialRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes any buffered data to the file and syncs it to disk.
func (w *RecordWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush record writer: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync record file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the record file.
func (w *RecordWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		w.file.Close() // Try to close anyway
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the record file.
func (w *RecordWriter) Path() string {
	return w.path
}

// RecordReader reads trial records from a JSONL file.
type RecordReader struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// NewRecordReader opens the record file at the given path.
func NewRecordReader(path string) (*RecordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// Large assignments can produce long lines
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 64KB initial, 1MB max

	return &RecordReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next record from the file, skipping blank lines.
// Returns io.EOF when no more records are available.
func (r *RecordReader) Read() (*tuner.TrialRecord, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record tuner.TrialRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to decode record at line %d: %w", r.line, err)
		}
		return &record, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan record line: %w", err)
	}
	return nil, io.EOF
}

// ReadAll reads all remaining records from the file.
func (r *RecordReader) ReadAll() ([]tuner.TrialRecord, error) {
	var records []tuner.TrialRecord

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Close closes the record reader.
func (r *RecordReader) Close() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}
	return nil
}
