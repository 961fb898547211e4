package storage

import (
	"fmt"
	"io"
	"sync"

	"github.com/olekukonko/tablewriter"

	"insta-analyzer/models"
)

// TerminalWriter renders post tables as aligned text tables.
type TerminalWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminalWriter creates a TerminalWriter writing to w.
func NewTerminalWriter(w io.Writer) *TerminalWriter {
	return &TerminalWriter{out: w}
}

func (t *TerminalWriter) WriteTable(title string, table *models.PostTable) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if title != "" {
		fmt.Fprintf(t.out, "\n%s\n", title)
	}
	if len(table.Rows) == 0 {
		fmt.Fprintln(t.out, "  (no posts)")
		return nil
	}

	tw := tablewriter.NewTable(t.out)
	tw.Header(table.Header())
	if err := tw.Bulk(table.Records()); err != nil {
		return fmt.Errorf("table: add rows: %w", err)
	}
	if err := tw.Render(); err != nil {
		return fmt.Errorf("table: render: %w", err)
	}
	return nil
}

func (t *TerminalWriter) Close() error { return nil }
