package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"insta-analyzer/models"
)

// CSVWriter writes post tables as CSV to a stream. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	out    io.Writer
	writer *csv.Writer
}

// NewCSVWriter creates a CSVWriter writing to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{out: w, writer: csv.NewWriter(w)}
}

// WriteTable writes a "# title" line, the header row, and one record per row.
func (c *CSVWriter) WriteTable(title string, table *models.PostTable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if title != "" {
		if _, err := fmt.Fprintf(c.out, "# %s\n", title); err != nil {
			return fmt.Errorf("csv: write title: %w", err)
		}
	}

	if err := c.writer.Write(table.Header()); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, rec := range table.Records() {
		if err := c.writer.Write(rec); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes any buffered records.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.writer.Error()
}
