package services

import (
	"insta-analyzer/models"
	"insta-analyzer/utils"
)

// Assembler joins posts with their metric values and lays them out as a table.
type Assembler struct {
	logger *utils.Logger
}

// NewAssembler creates an Assembler with the given logger.
func NewAssembler(logger *utils.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// Merge attaches each post's metric value, looked up by post id. A post with
// no metric aborts the merge with a *models.MergeError for that post.
func (a *Assembler) Merge(posts []models.Post, metrics map[string]models.MetricValue) ([]models.EnrichedPost, error) {
	seen := utils.NewIDSet()
	result := make([]models.EnrichedPost, 0, len(posts))

	for _, p := range posts {
		mv, ok := metrics[p.ID]
		if !ok {
			a.logger.Warn("[assembler] No metric for post %s", p.ID)
			return nil, &models.MergeError{PostID: p.ID}
		}
		if !seen.Add(p.ID) {
			a.logger.Debug("[assembler] Duplicate post id %s kept as a separate row", p.ID)
		}
		result = append(result, models.EnrichedPost{Post: p, Metric: mv.Value})
	}

	a.logger.Debug("[assembler] Merged %d posts (%d unique)", len(result), seen.Size())
	return result, nil
}

// ToTable lays enriched posts out in the default column order, keeping their order.
func (a *Assembler) ToTable(metric string, enriched []models.EnrichedPost) *models.PostTable {
	table := &models.PostTable{
		Metric:  metric,
		Columns: append([]models.Column(nil), models.DefaultColumns...),
		Rows:    make([]models.Row, 0, len(enriched)),
	}
	for _, e := range enriched {
		table.Rows = append(table.Rows, models.Row{
			ID:            e.ID,
			Timestamp:     e.Timestamp,
			LikeCount:     e.LikeCount,
			CommentsCount: e.CommentsCount,
			Metric:        e.Metric,
		})
	}
	return table
}
