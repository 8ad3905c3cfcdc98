package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/api"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store/memory"
)

var errUpstream = errors.New("dial tcp: connection refused")

type stubAuditor struct {
	method domain.IntegrationMethod
	err    error
	force  bool
}

func (a *stubAuditor) Audit(_ context.Context, _ *domain.Source, force bool) (domain.IntegrationMethod, error) {
	a.force = force
	return a.method, a.err
}

type stubCrawler struct {
	found, created, updated int
	err                     error
}

func (c *stubCrawler) Crawl(_ context.Context, _ string) (found, created, updated int, err error) {
	return c.found, c.created, c.updated, c.err
}

type fixture struct {
	store   *memory.Store
	auditor *stubAuditor
	crawler *stubCrawler
	router  *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)
	f := &fixture{
		store:   memory.New(),
		auditor: &stubAuditor{method: domain.MethodJSONLD},
		crawler: &stubCrawler{},
		router:  gin.New(),
	}

	src := &domain.Source{Slug: "the-eastern", Name: "The Eastern", URL: "https://theeastern.example", IsActive: true}
	if err := f.store.Upsert(context.Background(), src); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "event_crawler_test_total", Help: "test"}))

	h := api.NewHandler(f.store, f.store, f.store, f.auditor, f.crawler, logger.NewNop())
	h.Routes(f.router, reg)
	return f
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, http.NoBody)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", w.Body.String(), err)
		}
	}
	return w, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/health")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("expected 200 ok, got %d %v", w.Code, body)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "event_crawler_test_total") {
		t.Errorf("expected registered counter in output, got %s", w.Body.String())
	}
}

func TestListSources(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/api/v1/sources?active=true")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["total"] != float64(1) {
		t.Errorf("expected 1 source, got %v", body["total"])
	}
}

func TestAuditSource(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/sources/the-eastern/audit?force=true")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, body)
	}
	if body["integration_method"] != string(domain.MethodJSONLD) {
		t.Errorf("unexpected method %v", body["integration_method"])
	}
	if !f.auditor.force {
		t.Error("expected force to be passed through")
	}
}

func TestAuditSource_Errors(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodPost, "/api/v1/sources/missing/audit")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown slug, got %d", w.Code)
	}

	f.auditor.err = errUpstream
	w, _ = f.do(t, http.MethodPost, "/api/v1/sources/the-eastern/audit")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when the audit fails, got %d", w.Code)
	}
}

func TestCrawlSource(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{name: "success", wantCode: http.StatusOK, wantStatus: "success"},
		{name: "timed out", err: fmt.Errorf("%w: deadline", orchestrator.ErrRunTimedOut), wantCode: http.StatusOK, wantStatus: "timed_out"},
		{name: "failed", err: fmt.Errorf("%w: parse", orchestrator.ErrRunFailed), wantCode: http.StatusOK, wantStatus: "failed"},
		{name: "busy", err: orchestrator.ErrSourceBusy, wantCode: http.StatusConflict},
		{name: "cannot start", err: errUpstream, wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.crawler.found, f.crawler.created, f.crawler.err = 3, 2, tt.err

			w, body := f.do(t, http.MethodPost, "/api/v1/sources/the-eastern/crawl")
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %v", tt.wantCode, w.Code, body)
			}
			if tt.wantStatus == "" {
				return
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected status %s, got %v", tt.wantStatus, body["status"])
			}
			if body["events_found"] != float64(3) || body["events_new"] != float64(2) {
				t.Errorf("unexpected counts %v", body)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.store.GetBySlug(ctx, "the-eastern")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	for range 3 {
		run := &domain.CrawlRun{SourceID: src.ID, Method: domain.MethodHTML, Status: domain.RunPending, StartedAt: time.Now()}
		if err = f.store.Create(ctx, run); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	w, body := f.do(t, http.MethodGet, "/api/v1/runs?source=the-eastern&limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["total"] != float64(2) {
		t.Errorf("expected limit to apply, got %v", body["total"])
	}

	w, _ = f.do(t, http.MethodGet, "/api/v1/runs?source=nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown source, got %d", w.Code)
	}
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, day := range []string{"2026-03-01", "2026-03-05", "2026-03-09"} {
		start, _ := time.Parse("2006-01-02", day)
		e := &domain.Event{
			SourceID:    "src",
			Title:       fmt.Sprintf("Show %d", i),
			StartDate:   start,
			VenueName:   "The Eastern",
			ContentHash: fmt.Sprintf("hash-%d", i),
		}
		if err := f.store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	w, body := f.do(t, http.MethodGet, "/api/v1/events?from=2026-03-04")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["total"] != float64(2) || body["from"] != "2026-03-04" {
		t.Errorf("unexpected body %v", body)
	}

	w, _ = f.do(t, http.MethodGet, "/api/v1/events?from=March")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad date, got %d", w.Code)
	}
}
