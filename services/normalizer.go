package services

import (
	"fmt"
	"strings"

	"insta-analyzer/models"
	"insta-analyzer/utils"
)

const (
	sourceOffset = "+0000"
	targetOffset = "+0900"
)

// Normalizer rewrites timestamps and narrows table columns.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// NormalizeTimezone replaces the literal "+0000" offset in every timestamp
// with "+0900". It is a text substitution, not a timezone conversion: any
// other offset is left as is and reported as skipped. Timestamps already
// carrying "+0900" pass silently, so a second pass is a no-op. The input table
// is not modified.
func (n *Normalizer) NormalizeTimezone(table *models.PostTable) (*models.PostTable, []*models.NormalizationSkipped) {
	out := table.Clone()
	var skipped []*models.NormalizationSkipped

	for i := range out.Rows {
		ts := out.Rows[i].Timestamp
		if !strings.Contains(ts, sourceOffset) {
			if !strings.Contains(ts, targetOffset) {
				s := &models.NormalizationSkipped{Row: i, Timestamp: ts}
				n.logger.Warn("[normalizer] %v", s)
				skipped = append(skipped, s)
			}
			continue
		}
		out.Rows[i].Timestamp = strings.ReplaceAll(ts, sourceOffset, targetOffset)
	}

	return out, skipped
}

// ProjectColumns returns a copy of table restricted to the columns in keep,
// in that order. Row count and order are preserved.
func (n *Normalizer) ProjectColumns(table *models.PostTable, keep []models.Column) (*models.PostTable, error) {
	if len(keep) == 0 {
		return nil, fmt.Errorf("project: no columns requested")
	}
	for _, c := range keep {
		if !c.Known() {
			return nil, fmt.Errorf("project: unknown column %q", c)
		}
		if !table.HasColumn(c) {
			return nil, fmt.Errorf("project: column %q not in table", c)
		}
	}

	out := table.Clone()
	out.Columns = append([]models.Column(nil), keep...)
	return out, nil
}
