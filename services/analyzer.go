package services

import (
	"context"
	"errors"
	"fmt"

	"insta-analyzer/cache"
	"insta-analyzer/config"
	"insta-analyzer/models"
	"insta-analyzer/utils"
)

const (
	// GenericErrorMessage is the only message users see for pipeline failures.
	GenericErrorMessage = "An error occurred."
	// CredentialPromptMessage asks the user for the input still missing.
	CredentialPromptMessage = "Enter the username, business account ID and access token to show the charts."
)

var (
	// EngagementColumns feeds the likes/comments time-series and the weekday chart.
	EngagementColumns = []models.Column{models.ColumnTimestamp, models.ColumnLikeCount, models.ColumnCommentsCount}
	// ReachColumns feeds the likes/metric time-series.
	ReachColumns = []models.Column{models.ColumnTimestamp, models.ColumnLikeCount, models.ColumnMetric}
)

// GraphFetcher is the part of the Graph API client the pipeline needs.
type GraphFetcher interface {
	FetchPostList(ctx context.Context, username, accountID, token string, fields []string, limit int) ([]models.Post, error)
	FetchMetrics(ctx context.Context, posts []models.Post, token, metric string) (map[string]models.MetricValue, error)
}

// Request is the input of one analysis.
type Request struct {
	Username string
	// Limit caps the number of posts; zero means the configured default.
	Limit int
}

// Result is everything handed to the presentation layer.
type Result struct {
	Username   string
	Table      *models.PostTable
	Engagement *models.PostTable
	Reach      *models.PostTable
	Report     *models.InsightReport
	Skipped    []*models.NormalizationSkipped
	CacheHits  int
}

// Analyzer runs the fetch, merge, and normalize pipeline and memoizes fetch
// results between runs of the same session.
type Analyzer struct {
	cfg        *config.Config
	logger     *utils.Logger
	fetcher    GraphFetcher
	cache      *cache.Cache
	assembler  *Assembler
	normalizer *Normalizer
	insights   *InsightService
}

// NewAnalyzer wires an Analyzer around fetcher.
func NewAnalyzer(cfg *config.Config, logger *utils.Logger, fetcher GraphFetcher) (*Analyzer, error) {
	c, err := cache.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		cfg:        cfg,
		logger:     logger,
		fetcher:    fetcher,
		cache:      c,
		assembler:  NewAssembler(logger),
		normalizer: NewNormalizer(logger),
		insights:   NewInsightService(logger),
	}, nil
}

// Begin starts a new analysis session by dropping every cached fetch result.
func (a *Analyzer) Begin() {
	a.cache.Invalidate()
	a.logger.Debug("[analyzer] Cache invalidated")
}

// Run analyses req.Username. Fetch results are reused when the same inputs
// were already fetched since the last Begin.
func (a *Analyzer) Run(ctx context.Context, req Request) (*Result, error) {
	creds, err := a.cfg.ResolveCredentials(req.Username)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = a.cfg.PostLimit
	}
	metric := a.cfg.InsightMetric
	fields := a.cfg.MediaFields

	res := &Result{Username: creds.Username}

	postKey, err := cache.Key("post-list", creds.Username, limit, creds.AccountID, creds.AccessToken, fields)
	if err != nil {
		return nil, err
	}
	posts, hit, err := cache.Memoize(a.cache, postKey, func() ([]models.Post, error) {
		return a.fetcher.FetchPostList(ctx, creds.Username, creds.AccountID, creds.AccessToken, fields, limit)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		res.CacheHits++
		a.logger.Debug("[analyzer] Post list for %s served from cache", creds.Username)
	}

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	metricKey, err := cache.Key("metrics", metric, creds.AccessToken, ids)
	if err != nil {
		return nil, err
	}
	metrics, hit, err := cache.Memoize(a.cache, metricKey, func() (map[string]models.MetricValue, error) {
		return a.fetcher.FetchMetrics(ctx, posts, creds.AccessToken, metric)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		res.CacheHits++
		a.logger.Debug("[analyzer] Metrics for %d posts served from cache", len(posts))
	}

	enriched, err := a.assembler.Merge(posts, metrics)
	if err != nil {
		return nil, err
	}

	res.Table, res.Skipped = a.normalizer.NormalizeTimezone(a.assembler.ToTable(metric, enriched))

	if res.Engagement, err = a.normalizer.ProjectColumns(res.Table, EngagementColumns); err != nil {
		return nil, fmt.Errorf("engagement view: %w", err)
	}
	if res.Reach, err = a.normalizer.ProjectColumns(res.Table, ReachColumns); err != nil {
		return nil, fmt.Errorf("reach view: %w", err)
	}

	res.Report = a.insights.Generate(creds.Username, res.Engagement)

	a.logger.Info("[analyzer] %s: %d posts, %d timestamps left unnormalized, %d cache hits",
		creds.Username, len(res.Table.Rows), len(res.Skipped), res.CacheHits)
	a.logger.Debug("[analyzer] Cache holds %d results", a.cache.Len())
	return res, nil
}

// UserMessage is the single top-level error handler. It logs the specific
// failure and returns the message to show the user.
func UserMessage(logger *utils.Logger, err error) string {
	var (
		missing *models.CredentialMissingError
		fetch   *models.FetchError
		merge   *models.MergeError
	)
	switch {
	case errors.As(err, &missing):
		logger.Info("[analyzer] Waiting for input: %v", missing)
		return CredentialPromptMessage
	case errors.As(err, &fetch):
		logger.Error("[analyzer] Fetch failed at stage %s: %v", fetch.Stage, err)
	case errors.As(err, &merge):
		logger.Error("[analyzer] Merge failed for post %s: %v", merge.PostID, err)
	default:
		logger.Error("[analyzer] Analysis failed: %v", err)
	}
	return GenericErrorMessage
}
