package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/llm"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const venuePage = `<html><head><title>Upcoming at The Eastern</title></head><body>
<nav>Home | Tickets | Contact</nav>
<main><h1>Upcoming</h1>
<p>Friday February 6 – Jazz Night with the house band. Doors 7pm, show 8pm. $25.</p>
<p>Saturday March 1 – Street Fest, all day, free entry.</p>
</main></body></html>`

const modelReply = "Here are the events:\n```json\n[\n" +
	`{"title":"Jazz Night","description":"House band","start_date":"2026-02-06","start_time":"20:00",` +
	`"venue_name":"The Eastern","price_min":25,"price_max":25,"is_free":false,"ticket_url":"/tickets/jazz","tags":["Jazz"]},` +
	`{"title":"Street Fest","start_date":"2026-03-01","start_time":null,"is_free":true,"tags":[]}` +
	"\n]\n```"

type pageFetcher struct{ body string }

func (f pageFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	return &fetch.Response{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: []byte(f.body)}, nil
}

type fakeCompleter struct {
	reply  string
	err    error
	system string
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.reply, f.err
}

func TestExtract(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{reply: modelReply}
	a := llm.New(pageFetcher{body: venuePage}, c, 0, logger.NewNop())
	src := &domain.Source{
		Slug:   "the-eastern",
		Name:   "The Eastern",
		URL:    "https://theeastern.example/upcoming",
		Config: domain.JSONBMap{"hint": "Prices are per person", "venue_name": "The Eastern"},
	}

	got, err := a.Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)

	jazz := got[0]
	assert.Equal(t, "Jazz Night", jazz.Title)
	assert.Equal(t, "2026-02-06", jazz.StartDate.Format(domain.DateLayout))
	require.NotNil(t, jazz.StartTime)
	assert.Equal(t, "20:00", *jazz.StartTime)
	assert.Equal(t, "https://theeastern.example/tickets/jazz", jazz.TicketURL)
	assert.Equal(t, src.URL, jazz.SourceURL)
	require.NotNil(t, jazz.PriceMin)
	assert.InDelta(t, 25.0, *jazz.PriceMin, 0.001)
	assert.InDelta(t, llm.DefaultConfidence, jazz.Confidence, 0.001)
	assert.Equal(t, []string{"jazz"}, jazz.Tags)

	fest := got[1]
	assert.Nil(t, fest.StartTime)
	assert.Nil(t, fest.PriceMin)
	require.NotNil(t, fest.IsFree)
	assert.True(t, *fest.IsFree)
	assert.Equal(t, "The Eastern", fest.VenueName, "venue default applied")

	assert.Contains(t, c.prompt, "Jazz Night with the house band")
	assert.Contains(t, c.prompt, "Notes: Prices are per person")
	assert.Contains(t, c.system, "JSON array")
}

func TestExtract_ModelFailure(t *testing.T) {
	t.Parallel()

	a := llm.New(pageFetcher{body: venuePage}, &fakeCompleter{err: errors.New("overloaded")}, 0, logger.NewNop())
	_, err := a.Extract(context.Background(), &domain.Source{URL: "https://v.example"})
	assert.Equal(t, crawlerr.KindNetwork, crawlerr.KindOf(err))

	a = llm.New(pageFetcher{body: venuePage}, &fakeCompleter{reply: "I could not find events."}, 0, logger.NewNop())
	_, err = a.Extract(context.Background(), &domain.Source{URL: "https://v.example"})
	assert.Equal(t, crawlerr.KindParse, crawlerr.KindOf(err))
}

func TestParseReply_Empty(t *testing.T) {
	t.Parallel()

	got, err := llm.ParseReply("[]", "https://v.example", 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFactory_NoAPIKey(t *testing.T) {
	t.Parallel()

	f := llm.Factory(pageFetcher{}, llm.Config{}, logger.NewNop())
	_, err := f(&domain.Source{})
	assert.ErrorIs(t, err, llm.ErrNoAPIKey)
}

func TestAnthropicCompleter(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"test-model",` +
			`"content":[{"type":"text","text":"[]"}],"stop_reason":"end_turn",` +
			`"usage":{"input_tokens":10,"output_tokens":2}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := llm.NewAnthropicCompleter(llm.Config{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	reply, err := c.Complete(context.Background(), "system text", "page text")
	require.NoError(t, err)
	assert.Equal(t, "[]", reply)
	assert.Equal(t, "test-model", gotBody["model"])
}
