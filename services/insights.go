package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"insta-analyzer/models"
	"insta-analyzer/utils"
)

// timestampLayout is the Graph API timestamp format, e.g. 2023-01-01T10:00:00+0000.
const timestampLayout = "2006-01-02T15:04:05-0700"

var (
	bannerColor  = color.New(color.FgMagenta, color.Bold)
	sectionColor = color.New(color.FgYellow, color.Bold)
	valueColor   = color.New(color.FgGreen, color.Bold)
)

// InsightService derives the series the chart layer plots from a post table.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes axis bounds and the weekday like averages. Weekdays are
// taken in each timestamp's own offset.
func (s *InsightService) Generate(username string, table *models.PostTable) *models.InsightReport {
	report := &models.InsightReport{Username: username}
	if table == nil || len(table.Rows) == 0 {
		return report
	}

	report.TotalPosts = len(table.Rows)

	var totalLikes int
	var byDay [7]struct {
		posts int
		likes int
	}

	for i, r := range table.Rows {
		totalLikes += r.LikeCount
		if i == 0 || r.LikeCount > report.MaxLikes {
			report.MaxLikes = r.LikeCount
		}
		if i == 0 || r.CommentsCount > report.MaxComments {
			report.MaxComments = r.CommentsCount
		}

		ts, err := time.Parse(timestampLayout, r.Timestamp)
		if err != nil {
			s.logger.Debug("[insights] Unparseable timestamp %q skipped for weekday series", r.Timestamp)
			report.SkippedDates++
			continue
		}
		day := ts.Weekday()
		byDay[day].posts++
		byDay[day].likes += r.LikeCount
	}

	report.CommentsYMax = report.MaxComments + 2
	meanLikes := float64(totalLikes) / float64(report.TotalPosts)
	report.AverageLikes = round2(meanLikes)
	report.WeekdayYMax = round2((meanLikes + float64(report.MaxLikes)) / 2)

	for d := time.Sunday; d <= time.Saturday; d++ {
		if byDay[d].posts == 0 {
			continue
		}
		report.LikesByWeekday = append(report.LikesByWeekday, models.WeekdayLikes{
			Day:       d.String(),
			Posts:     byDay[d].posts,
			MeanLikes: round2(float64(byDay[d].likes) / float64(byDay[d].posts)),
		})
	}

	return report
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	bannerColor.Fprintf(w, "\n%s\n", sep)
	bannerColor.Fprintf(w, "  ENGAGEMENT OF @%s\n", r.Username)
	bannerColor.Fprintf(w, "%s\n\n", sep)

	sectionColor.Fprintf(w, "  Overview\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Posts analysed   : %s\n", valueColor.Sprint(r.TotalPosts))
	fmt.Fprintf(w, "  Average likes    : %s\n", valueColor.Sprintf("%.2f", r.AverageLikes))
	fmt.Fprintf(w, "  Most likes       : %s\n", valueColor.Sprint(r.MaxLikes))
	fmt.Fprintf(w, "  Most comments    : %s\n", valueColor.Sprint(r.MaxComments))
	fmt.Fprintln(w)

	sectionColor.Fprintf(w, "  Mean Likes by Weekday\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.LikesByWeekday) == 0 {
		fmt.Fprintf(w, "  No dated posts\n")
	} else {
		for _, d := range r.LikesByWeekday {
			bar := strings.Repeat("█", barWidth(d.MeanLikes, r.WeekdayYMax, 30))
			fmt.Fprintf(w, "  %-10s %-30s %.2f (%d)\n", d.Day, bar, d.MeanLikes, d.Posts)
		}
	}
	if r.SkippedDates > 0 {
		fmt.Fprintf(w, "  (%d posts without a parseable timestamp)\n", r.SkippedDates)
	}

	bannerColor.Fprintf(w, "\n%s\n\n", sep)
}

// barWidth scales v against max onto width characters, clipping at width.
func barWidth(v, max float64, width int) int {
	if max <= 0 || v <= 0 {
		return 0
	}
	n := int(v / max * float64(width))
	if n > width {
		n = width
	}
	return n
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
