package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"insta-analyzer/config"
	"insta-analyzer/models"
	"insta-analyzer/utils"
)

const mediaListJSON = `{
  "business_discovery": {
    "media": {
      "data": [
        {"timestamp": "2023-01-03T10:00:00+0000", "like_count": 12, "comments_count": 3, "id": "c"},
        {"timestamp": "2023-01-02T10:00:00+0000", "like_count": 7, "comments_count": 1, "id": "b"},
        {"timestamp": "2023-01-01T10:00:00+0000", "like_count": 5, "comments_count": 2, "id": "a"}
      ]
    },
    "id": "17841400000000000"
  },
  "id": "17841411111111111"
}`

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		GraphBaseURL:     baseURL,
		MediaFields:      config.DefaultMediaFields,
		InsightMetric:    "reach",
		PostLimit:        25,
		MaxConcurrency:   3,
		MaxRetries:       3,
		RetryBaseDelayMs: 1,
		HTTPTimeoutSec:   5,
	}
}

func newTestFetcher(t *testing.T, handler http.Handler) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithClient(testConfig(srv.URL), utils.NewLoggerTo(io.Discard, io.Discard), srv.Client())
}

func insightJSON(value int) string {
	return fmt.Sprintf(`{"data":[{"name":"reach","period":"lifetime","values":[{"value":%d}],"id":"x/insights/reach/lifetime"}]}`, value)
}

func TestFetchPostListPreservesOrder(t *testing.T) {
	var gotPath, gotFields, gotToken string
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFields = r.URL.Query().Get("fields")
		gotToken = r.URL.Query().Get("access_token")
		io.WriteString(w, mediaListJSON)
	}))

	posts, err := f.FetchPostList(context.Background(), "natgeo", "1784", "secret", config.DefaultMediaFields, 25)
	if err != nil {
		t.Fatalf("FetchPostList: %v", err)
	}

	if gotPath != "/1784" {
		t.Errorf("path: got %q, want /1784", gotPath)
	}
	wantFields := "business_discovery.username(natgeo){media{timestamp,like_count,comments_count}}"
	if gotFields != wantFields {
		t.Errorf("fields: got %q, want %q", gotFields, wantFields)
	}
	if gotToken != "secret" {
		t.Errorf("access_token: got %q", gotToken)
	}

	wantIDs := []string{"c", "b", "a"}
	if len(posts) != len(wantIDs) {
		t.Fatalf("posts: got %d, want %d", len(posts), len(wantIDs))
	}
	for i, id := range wantIDs {
		if posts[i].ID != id {
			t.Errorf("posts[%d].ID: got %q, want %q", i, posts[i].ID, id)
		}
	}
	if posts[2].LikeCount != 5 || posts[2].CommentsCount != 2 {
		t.Errorf("posts[2]: got %+v", posts[2])
	}
}

func TestFetchPostListTruncatesToLimit(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, mediaListJSON)
	}))

	posts, err := f.FetchPostList(context.Background(), "natgeo", "1784", "secret", nil, 2)
	if err != nil {
		t.Fatalf("FetchPostList: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "c" || posts[1].ID != "b" {
		t.Errorf("expected first two posts in API order, got %+v", posts)
	}
}

func TestFetchPostListEmpty(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"business_discovery":{"media":{"data":[]}}}`)
	}))

	posts, err := f.FetchPostList(context.Background(), "quiet", "1784", "secret", nil, 25)
	if err != nil {
		t.Fatalf("empty media list should not fail: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("posts: got %d, want 0", len(posts))
	}
}

func TestFetchPostListErrors(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		status    int
		body      string
		wantStage models.Stage
		wantAPI   bool
	}{
		{"missing media", "natgeo", 200, `{"business_discovery":{"id":"1"}}`, models.StagePostList, false},
		{"missing business discovery", "natgeo", 200, `{"id":"1"}`, models.StagePostList, false},
		{"not json", "natgeo", 200, `<html>`, models.StagePostList, false},
		{"graph error", "natgeo", 400, `{"error":{"message":"Invalid user id","type":"OAuthException","code":110,"fbtrace_id":"Ab"}}`, models.StagePostList, true},
		{"plain 404", "natgeo", 404, `not found`, models.StagePostList, false},
		{"item without id", "natgeo", 200, `{"business_discovery":{"media":{"data":[{"like_count":1}]}}}`, models.StageFieldExtraction, false},
		{"item with bad field", "natgeo", 200, `{"business_discovery":{"media":{"data":[{"id":"a","like_count":"many"}]}}}`, models.StageFieldExtraction, false},
		{"empty username", "", 200, mediaListJSON, models.StagePostList, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			_, err := f.FetchPostList(context.Background(), tt.username, "1784", "secret", nil, 25)
			var fe *models.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fe.Stage != tt.wantStage {
				t.Errorf("stage: got %q, want %q", fe.Stage, tt.wantStage)
			}
			if (fe.API != nil) != tt.wantAPI {
				t.Errorf("API payload present: got %v, want %v", fe.API != nil, tt.wantAPI)
			}
		})
	}
}

func TestFetchPostListRequiresCredentials(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent without credentials")
	}))

	_, err := f.FetchPostList(context.Background(), "natgeo", "1784", "", nil, 25)
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Stage != models.StagePostList {
		t.Fatalf("expected post-list FetchError, got %v", err)
	}
}

func TestFetchMetric(t *testing.T) {
	var gotPath, gotMetric string
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMetric = r.URL.Query().Get("metric")
		io.WriteString(w, insightJSON(37))
	}))

	mv, err := f.FetchMetric(context.Background(), "a", "secret", "reach")
	if err != nil {
		t.Fatalf("FetchMetric: %v", err)
	}
	if gotPath != "/a/insights" || gotMetric != "reach" {
		t.Errorf("request: path %q metric %q", gotPath, gotMetric)
	}
	if mv.PostID != "a" || mv.Value != 37 {
		t.Errorf("metric: got %+v", mv)
	}
}

func TestFetchMetricMalformed(t *testing.T) {
	bodies := map[string]string{
		"no data":   `{"data":[]}`,
		"no values": `{"data":[{"values":[]}]}`,
		"no value":  `{"data":[{"values":[{"end_time":"2023-01-01"}]}]}`,
		"null":      `{"data":[{"values":[{"value":null}]}]}`,
		"object":    `{"data":[{"values":[{"value":{"a":1}}]}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))

			_, err := f.FetchMetric(context.Background(), "a", "secret", "reach")
			var fe *models.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fe.Stage != models.StageMetric || fe.PostID != "a" {
				t.Errorf("got stage %q post %q", fe.Stage, fe.PostID)
			}
		})
	}
}

func TestFetchMetricRetriesTransient(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, insightJSON(9))
	}))

	mv, err := f.FetchMetric(context.Background(), "a", "secret", "reach")
	if err != nil {
		t.Fatalf("FetchMetric: %v", err)
	}
	if mv.Value != 9 {
		t.Errorf("value: got %v, want 9", mv.Value)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestFetchMetricDoesNotRetryClientError(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"(#100) Incompatible metric","type":"OAuthException","code":100}}`)
	}))

	_, err := f.FetchMetric(context.Background(), "a", "secret", "reach")
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.API == nil || fe.API.Code != 100 {
		t.Fatalf("expected FetchError with API code 100, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestFetchMetricsJoinsByID(t *testing.T) {
	values := map[string]int{"a": 37, "b": 12, "c": 5}
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/insights")
		io.WriteString(w, insightJSON(values[id]))
	}))

	posts := []models.Post{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "a"}}
	got, err := f.FetchMetrics(context.Background(), posts, "secret", "reach")
	if err != nil {
		t.Fatalf("FetchMetrics: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("metrics: got %d, want 3", len(got))
	}
	for id, v := range values {
		if got[id].Value != float64(v) {
			t.Errorf("metric %s: got %v, want %d", id, got[id].Value, v)
		}
	}
}

func TestFetchMetricsFailureAbortsBatch(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/b/") {
			io.WriteString(w, `{"data":[]}`)
			return
		}
		io.WriteString(w, insightJSON(1))
	}))

	posts := []models.Post{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	_, err := f.FetchMetrics(context.Background(), posts, "secret", "reach")
	var fe *models.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.PostID != "b" {
		t.Errorf("PostID: got %q, want b", fe.PostID)
	}
}

func TestTransportErrorDoesNotLeakToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	cfg := testConfig(baseURL)
	cfg.MaxRetries = 1
	f := NewWithClient(cfg, utils.NewLoggerTo(io.Discard, io.Discard), &http.Client{})

	_, err := f.FetchMetric(context.Background(), "a", "super-secret-token", "reach")
	if err == nil {
		t.Fatal("expected an error from a closed server")
	}
	if strings.Contains(err.Error(), "super-secret-token") {
		t.Errorf("error leaks the access token: %v", err)
	}
}

func TestFetchPostListRejectsInvalidUsername(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent for an invalid username")
	}))

	for _, username := range []string{
		"natgeo){media{id}},name,business_discovery.username(other",
		"nat geo",
		"natgeo}",
	} {
		_, err := f.FetchPostList(context.Background(), username, "1784", "secret", nil, 25)
		var fe *models.FetchError
		if !errors.As(err, &fe) || fe.Stage != models.StagePostList {
			t.Errorf("username %q: expected post-list FetchError, got %v", username, err)
		}
	}
}

func TestFetchPostListTrimsUsername(t *testing.T) {
	var gotFields string
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		io.WriteString(w, mediaListJSON)
	}))

	if _, err := f.FetchPostList(context.Background(), "  nat_geo.jp ", "1784", "secret", nil, 25); err != nil {
		t.Fatalf("FetchPostList: %v", err)
	}
	if !strings.HasPrefix(gotFields, "business_discovery.username(nat_geo.jp){") {
		t.Errorf("fields: got %q", gotFields)
	}
}

func TestFetchPostListRetriesServerError(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, mediaListJSON)
	}))

	posts, err := f.FetchPostList(context.Background(), "natgeo", "1784", "secret", nil, 25)
	if err != nil {
		t.Fatalf("FetchPostList: %v", err)
	}
	if len(posts) != 3 {
		t.Errorf("posts: got %d, want 3", len(posts))
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

func TestFetchMetricRetriesGraphTransientError(t *testing.T) {
	var calls int32
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"message":"An unexpected error has occurred.","type":"OAuthException","code":2,"is_transient":true}}`)
			return
		}
		io.WriteString(w, insightJSON(14))
	}))

	mv, err := f.FetchMetric(context.Background(), "a", "secret", "reach")
	if err != nil {
		t.Fatalf("FetchMetric: %v", err)
	}
	if mv.Value != 14 || calls != 2 {
		t.Errorf("value %v after %d calls, want 14 after 2", mv.Value, calls)
	}
}

func TestFetchMetricDoesNotRetryRequestBuildFailure(t *testing.T) {
	cfg := testConfig("http://exa mple.com/")
	cfg.MaxRetries = 5
	cfg.RetryBaseDelayMs = 10000
	f := NewWithClient(cfg, utils.NewLoggerTo(io.Discard, io.Discard), &http.Client{})

	start := time.Now()
	_, err := f.FetchMetric(context.Background(), "a", "secret", "reach")
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Network {
		t.Fatalf("expected a non-network FetchError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request build failure was retried, took %v", elapsed)
	}
}
