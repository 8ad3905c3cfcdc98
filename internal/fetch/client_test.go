package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

func newTestClient(cfg fetch.Config) *fetch.Client {
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return fetch.NewClient(cfg, logger.NewNop())
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetch.DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	resp, err := newTestClient(fetch.Config{}).Fetch(context.Background(), srv.URL+"/events")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.ContentType)
	assert.Contains(t, resp.Text(), "ok")
	assert.Equal(t, srv.URL+"/events", resp.FinalURL)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	resp, err := newTestClient(fetch.Config{MaxAttempts: 3}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text())
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetch_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(fetch.Config{MaxAttempts: 2}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindNetwork, crawlerr.KindOf(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   crawlerr.Kind
	}{
		{"not found", http.StatusNotFound, crawlerr.KindNetwork},
		{"rate limited", http.StatusTooManyRequests, crawlerr.KindRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(fetch.Config{MaxAttempts: 3}).Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.want, crawlerr.KindOf(err))
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := newTestClient(fetch.Config{}).Fetch(context.Background(), "not a url")
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindParse, crawlerr.KindOf(err))
}

func TestFetch_RespectsRobots(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("public"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(fetch.Config{RespectRobots: true})

	_, err := c.Fetch(context.Background(), srv.URL+"/events")
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), srv.URL+"/private/calendar")
	require.ErrorIs(t, err, fetch.ErrDisallowed)
}

func TestFetch_TruncatesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	resp, err := newTestClient(fetch.Config{MaxBodyBytes: 4}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", resp.Text())
}
