package storage

import "insta-analyzer/models"

// TableWriter is the interface any presentation sink must satisfy.
type TableWriter interface {
	WriteTable(title string, table *models.PostTable) error
	Close() error
}
