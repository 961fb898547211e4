// Package fetcher talks to the Instagram Graph API: one call for the media
// list of a business account, and one insights call per post.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"insta-analyzer/config"
	"insta-analyzer/models"
	"insta-analyzer/utils"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// usernamePattern matches the characters Instagram allows in a username.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]+$`)

var (
	errEmptyUsername    = errors.New("username is empty")
	errEmptyCredentials = errors.New("business account id or access token is empty")
)

// Fetcher issues Graph API requests.
type Fetcher struct {
	cfg     *config.Config
	logger  *utils.Logger
	client  *http.Client
	retry   *utils.RetryConfig
	baseURL string
}

// New creates a ready-to-use Fetcher.
func New(cfg *config.Config, logger *utils.Logger) *Fetcher {
	return NewWithClient(cfg, logger, &http.Client{Timeout: cfg.HTTPTimeout()})
}

// NewWithClient creates a Fetcher that sends requests through client.
func NewWithClient(cfg *config.Config, logger *utils.Logger, client *http.Client) *Fetcher {
	baseURL := cfg.GraphBaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Fetcher{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		baseURL: baseURL,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay(),
			Logger:      logger,
			Retryable:   isTransient,
		},
	}
}

type postListResponse struct {
	BusinessDiscovery *struct {
		Media *struct {
			Data *[]json.RawMessage `json:"data"`
		} `json:"media"`
	} `json:"business_discovery"`
	Error *models.APIError `json:"error"`
}

// FetchPostList returns the posts of username as ordered by the API, capped
// at limit posts when limit is positive.
func (f *Fetcher) FetchPostList(ctx context.Context, username, accountID, token string, fields []string, limit int) ([]models.Post, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &models.FetchError{Stage: models.StagePostList, Err: errEmptyUsername}
	}
	if !usernamePattern.MatchString(username) {
		return nil, &models.FetchError{Stage: models.StagePostList, Err: fmt.Errorf("invalid username %q", username)}
	}
	if accountID == "" || token == "" {
		return nil, &models.FetchError{Stage: models.StagePostList, Err: errEmptyCredentials}
	}
	if len(fields) == 0 {
		fields = config.DefaultMediaFields
	}

	query := url.Values{}
	query.Set("fields", fmt.Sprintf("business_discovery.username(%s){media{%s}}", username, strings.Join(fields, ",")))
	query.Set("access_token", token)
	requestURL := f.baseURL + url.PathEscape(accountID) + "?" + query.Encode()

	f.logger.Info("[fetcher] Fetching post list for %s", username)

	var body []byte
	err := f.retry.Do(ctx, "post-list "+username, func(ctx context.Context) error {
		var err error
		body, err = f.get(ctx, models.StagePostList, "", requestURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	var resp postListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &models.FetchError{Stage: models.StagePostList, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Error != nil {
		return nil, &models.FetchError{Stage: models.StagePostList, StatusCode: http.StatusOK, API: resp.Error}
	}
	if resp.BusinessDiscovery == nil || resp.BusinessDiscovery.Media == nil || resp.BusinessDiscovery.Media.Data == nil {
		return nil, &models.FetchError{
			Stage:      models.StagePostList,
			StatusCode: http.StatusOK,
			Err:        errors.New("response has no business_discovery.media.data"),
		}
	}

	raw := *resp.BusinessDiscovery.Media.Data
	posts := make([]models.Post, 0, len(raw))
	for i, item := range raw {
		var p models.Post
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, &models.FetchError{Stage: models.StageFieldExtraction, Err: fmt.Errorf("media item %d: %w", i, err)}
		}
		if p.ID == "" {
			return nil, &models.FetchError{Stage: models.StageFieldExtraction, Err: fmt.Errorf("media item %d has no id", i)}
		}
		posts = append(posts, p)
	}

	if limit > 0 && len(posts) > limit {
		f.logger.Debug("[fetcher] Truncating %d posts to limit %d", len(posts), limit)
		posts = posts[:limit]
	}

	f.logger.Info("[fetcher] Post list for %s: %d posts", username, len(posts))
	return posts, nil
}

type insightResponse struct {
	Data []struct {
		Values []struct {
			Value *float64 `json:"value"`
		} `json:"values"`
	} `json:"data"`
	Error *models.APIError `json:"error"`
}

// FetchMetric returns the first value of metric for postID.
func (f *Fetcher) FetchMetric(ctx context.Context, postID, token, metric string) (models.MetricValue, error) {
	fail := func(status int, err error) (models.MetricValue, error) {
		return models.MetricValue{}, &models.FetchError{Stage: models.StageMetric, PostID: postID, StatusCode: status, Err: err}
	}
	if postID == "" {
		return fail(0, errors.New("post id is empty"))
	}
	if token == "" {
		return fail(0, errEmptyCredentials)
	}

	query := url.Values{}
	query.Set("metric", metric)
	query.Set("access_token", token)
	requestURL := f.baseURL + url.PathEscape(postID) + "/insights?" + query.Encode()

	var body []byte
	err := f.retry.Do(ctx, "metric "+postID, func(ctx context.Context) error {
		var err error
		body, err = f.get(ctx, models.StageMetric, postID, requestURL)
		return err
	})
	if err != nil {
		return models.MetricValue{}, err
	}

	var resp insightResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fail(http.StatusOK, fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil {
		return models.MetricValue{}, &models.FetchError{Stage: models.StageMetric, PostID: postID, StatusCode: http.StatusOK, API: resp.Error}
	}
	if len(resp.Data) == 0 {
		return fail(http.StatusOK, errors.New("response has no data[0]"))
	}
	if len(resp.Data[0].Values) == 0 {
		return fail(http.StatusOK, errors.New("response has no data[0].values[0]"))
	}
	value := resp.Data[0].Values[0].Value
	if value == nil {
		return fail(http.StatusOK, errors.New("response has no data[0].values[0].value"))
	}

	f.logger.Debug("[fetcher] %s for post %s: %v", metric, postID, *value)
	return models.MetricValue{PostID: postID, Value: *value}, nil
}

// FetchMetrics fetches metric for every post on a bounded worker pool and
// returns the values keyed by post id. The first failure cancels the rest.
func (f *Fetcher) FetchMetrics(ctx context.Context, posts []models.Post, token, metric string) (map[string]models.MetricValue, error) {
	results := make(map[string]models.MetricValue, len(posts))
	if len(posts) == 0 {
		return results, nil
	}

	f.logger.Info("[fetcher] Fetching %s for %d posts (concurrency %d)", metric, len(posts), f.cfg.MaxConcurrency)

	var mu sync.Mutex
	submitted := utils.NewIDSet()
	pool := utils.NewWorkerPool(ctx, f.cfg.MaxConcurrency, f.cfg.RateLimitMs)

	for _, p := range posts {
		if !submitted.Add(p.ID) {
			f.logger.Debug("[fetcher] Duplicate post id %s, fetching once", p.ID)
			continue
		}
		postID := p.ID
		pool.Submit(func(ctx context.Context) error {
			mv, err := f.FetchMetric(ctx, postID, token, metric)
			if err != nil {
				return err
			}
			mu.Lock()
			results[postID] = mv
			mu.Unlock()
			return nil
		})
	}

	if err := pool.Wait(); err != nil {
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			err = &models.FetchError{Stage: models.StageMetric, Err: err}
		}
		return nil, err
	}

	f.logger.Info("[fetcher] Fetched %s for %d posts", metric, submitted.Size())
	return results, nil
}

// get performs one GET and returns the body of a 2xx response. Any other
// outcome is a *models.FetchError.
func (f *Fetcher) get(ctx context.Context, stage models.Stage, postID, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &models.FetchError{Stage: stage, PostID: postID, Err: redact(err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{Stage: stage, PostID: postID, Network: true, Err: redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &models.FetchError{Stage: stage, PostID: postID, StatusCode: resp.StatusCode, Network: true, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &models.FetchError{Stage: stage, PostID: postID, StatusCode: resp.StatusCode}
		var envelope struct {
			Error *models.APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			fe.API = envelope.Error
		} else {
			fe.Err = fmt.Errorf("unexpected status %s", resp.Status)
		}
		return nil, fe
	}
	return body, nil
}

func isTransient(err error) bool {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

// redact strips the query string, which carries the access token, from
// errors returned by the HTTP client.
func redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	target := ue.URL
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return fmt.Errorf("%s %s: %w", ue.Op, target, ue.Err)
}
