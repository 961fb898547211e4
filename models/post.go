package models

import "strconv"

// Post is one published item as returned by the business discovery media list.
type Post struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
}

// MetricValue is a single insight value fetched for one post.
type MetricValue struct {
	PostID string
	Value  float64
}

// EnrichedPost is a Post joined with its metric value.
type EnrichedPost struct {
	Post
	Metric float64
}

// Column names a PostTable column.
type Column string

const (
	ColumnTimestamp     Column = "timestamp"
	ColumnLikeCount     Column = "like_count"
	ColumnCommentsCount Column = "comments_count"
	ColumnMetric        Column = "metric"
)

// DefaultColumns is the column order produced by the assembler.
var DefaultColumns = []Column{
	ColumnTimestamp,
	ColumnLikeCount,
	ColumnCommentsCount,
	ColumnMetric,
}

// Known reports whether c is one of the table's columns.
func (c Column) Known() bool {
	for _, k := range DefaultColumns {
		if c == k {
			return true
		}
	}
	return false
}

// Row is one enriched post laid out for the table.
type Row struct {
	ID            string
	Timestamp     string
	LikeCount     int
	CommentsCount int
	Metric        float64
}

// Cell returns the string form of the row's value in column c.
func (r Row) Cell(c Column) string {
	switch c {
	case ColumnTimestamp:
		return r.Timestamp
	case ColumnLikeCount:
		return strconv.Itoa(r.LikeCount)
	case ColumnCommentsCount:
		return strconv.Itoa(r.CommentsCount)
	case ColumnMetric:
		return strconv.FormatFloat(r.Metric, 'f', -1, 64)
	}
	return ""
}

// PostTable is the analysis-ready table handed to the presentation layer.
// Rows keep the order of the post-list response.
type PostTable struct {
	// Metric is the insight metric name shown as the metric column's label.
	Metric  string
	Columns []Column
	Rows    []Row
}

// Header returns the column labels, with the metric column labelled by the
// metric name when one is set.
func (t *PostTable) Header() []string {
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if c == ColumnMetric && t.Metric != "" {
			header[i] = t.Metric
			continue
		}
		header[i] = string(c)
	}
	return header
}

// Records returns every row rendered as strings in column order.
func (t *PostTable) Records() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			rec[i] = r.Cell(c)
		}
		out = append(out, rec)
	}
	return out
}

// HasColumn reports whether the table currently carries column c.
func (t *PostTable) HasColumn(c Column) bool {
	for _, col := range t.Columns {
		if col == c {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the table.
func (t *PostTable) Clone() *PostTable {
	cp := &PostTable{
		Metric:  t.Metric,
		Columns: append([]Column(nil), t.Columns...),
		Rows:    append([]Row(nil), t.Rows...),
	}
	return cp
}

// InsightReport holds the series the two chart types need.
type InsightReport struct {
	Username       string
	TotalPosts     int
	MaxComments    int
	CommentsYMax   int
	AverageLikes   float64
	MaxLikes       int
	LikesByWeekday []WeekdayLikes
	WeekdayYMax    float64
	SkippedDates   int
}

// WeekdayLikes is the mean like count over all posts published on Day.
type WeekdayLikes struct {
	Day       string
	Posts     int
	MeanLikes float64
}
