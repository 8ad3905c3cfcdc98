package feed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/feed"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const calendarBody = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//The Eastern//Events//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:jazz-1@theeastern\r\n" +
	"SUMMARY:Jazz Night\r\n" +
	"DTSTART;TZID=America/New_York:20260206T200000\r\n" +
	"DTEND;TZID=America/New_York:20260206T230000\r\n" +
	"LOCATION:The Eastern\\, 777 Memorial Dr SE\\, Atlanta\r\n" +
	"DESCRIPTION:An evening of jazz\\, live.\r\n" +
	"URL:https://theeastern.example/e/jazz\r\n" +
	"CATEGORIES:Jazz,Live Music\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:fest-1@theeastern\r\n" +
	"SUMMARY:Street Fest\r\n" +
	"DTSTART;VALUE=DATE:20260301\r\n" +
	"DTEND;VALUE=DATE:20260303\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cancelled-1@theeastern\r\n" +
	"SUMMARY:Called Off\r\n" +
	"STATUS:CANCELLED\r\n" +
	"DTSTART:20260310T200000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:ev="http://purl.org/rss/1.0/modules/event/">
<channel><title>Shows</title>
<item>
  <title>Jazz &amp; Blues Night</title>
  <link>https://theeastern.example/e/1</link>
  <description>&lt;p&gt;Doors at 7&lt;/p&gt;</description>
  <category>Jazz</category>
  <ev:startdate>2026-02-06T20:00:00-05:00</ev:startdate>
  <ev:location>The Eastern</ev:location>
</item>
<item>
  <title>News post</title>
  <link>https://theeastern.example/news/1</link>
  <pubDate>Mon, 02 Feb 2026 10:00:00 -0500</pubDate>
</item>
</channel></rss>`

type staticFetcher struct {
	bodies map[string]string
}

func (f *staticFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	body, ok := f.bodies[rawURL]
	if !ok {
		return nil, crawlerr.FromHTTPStatus(404, rawURL)
	}
	return &fetch.Response{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func TestExtract_ICal(t *testing.T) {
	t.Parallel()

	f := &staticFetcher{bodies: map[string]string{"https://theeastern.example/cal.ics": calendarBody}}
	a := feed.New(f, logger.NewNop())
	src := &domain.Source{
		Slug:   "the-eastern",
		URL:    "https://theeastern.example",
		Config: domain.JSONBMap{"feed_url": "https://theeastern.example/cal.ics", "venue_id": "venue-9"},
	}

	got, err := a.Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2, "cancelled entries are skipped")

	jazz := got[0]
	assert.Equal(t, "Jazz Night", jazz.Title)
	assert.Equal(t, "2026-02-06", jazz.StartDate.Format(domain.DateLayout))
	require.NotNil(t, jazz.StartTime)
	assert.Equal(t, "20:00", *jazz.StartTime)
	assert.False(t, jazz.IsAllDay)
	assert.Equal(t, "The Eastern", jazz.VenueName)
	assert.Equal(t, "An evening of jazz, live.", jazz.Description)
	assert.Equal(t, []string{"jazz", "live music"}, jazz.Tags)
	require.NotNil(t, jazz.VenueID)
	assert.Equal(t, "venue-9", *jazz.VenueID)
	assert.InDelta(t, feed.DefaultICalConfidence, jazz.Confidence, 0.001)

	fest := got[1]
	assert.True(t, fest.IsAllDay)
	assert.Nil(t, fest.StartTime)
	require.NotNil(t, fest.EndDate)
	assert.Equal(t, "2026-03-02", fest.EndDate.Format(domain.DateLayout))
}

func TestExtract_RSS(t *testing.T) {
	t.Parallel()

	f := &staticFetcher{bodies: map[string]string{"https://theeastern.example/feed": rssBody}}
	src := &domain.Source{
		URL:               "https://theeastern.example",
		ClassifierSignals: domain.Signals{{Name: "feed_url", Detail: "https://theeastern.example/feed"}},
	}

	got, err := feed.New(f, logger.NewNop()).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Jazz & Blues Night", got[0].Title)
	assert.Equal(t, "Doors at 7", got[0].Description)
	assert.Equal(t, "2026-02-06", got[0].StartDate.Format(domain.DateLayout))
	assert.Equal(t, "The Eastern", got[0].VenueName)

	assert.True(t, got[1].StartDate.IsZero(), "publish dates are not event dates by default")
}

func TestExtract_RSSPublishedDateOptIn(t *testing.T) {
	t.Parallel()

	f := &staticFetcher{bodies: map[string]string{"https://theeastern.example/feed": rssBody}}
	src := &domain.Source{
		URL:    "https://theeastern.example/feed",
		Config: domain.JSONBMap{"use_published_date": true, "max_items": 5},
	}

	got, err := feed.New(f, logger.NewNop()).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-02-02", got[1].StartDate.Format(domain.DateLayout))
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()

	f := &staticFetcher{bodies: map[string]string{"https://bad.example": "<html>not a feed</html>"}}
	a := feed.New(f, logger.NewNop())

	_, err := a.Extract(context.Background(), &domain.Source{URL: "https://bad.example"})
	assert.Equal(t, crawlerr.KindParse, crawlerr.KindOf(err))

	_, err = a.Extract(context.Background(), &domain.Source{URL: "https://missing.example"})
	assert.Equal(t, crawlerr.KindNetwork, crawlerr.KindOf(err))
}

func TestFeedURL_Precedence(t *testing.T) {
	t.Parallel()

	src := &domain.Source{
		URL:               "https://a.example",
		ClassifierSignals: domain.Signals{{Name: "feed_url", Detail: "https://a.example/feed"}},
	}
	assert.Equal(t, "https://a.example/feed", feed.FeedURL(src, feed.Options{}))
	assert.Equal(t, "https://a.example/cal.ics", feed.FeedURL(src, feed.Options{FeedURL: "https://a.example/cal.ics"}))
	assert.Equal(t, "https://b.example", feed.FeedURL(&domain.Source{URL: "https://b.example"}, feed.Options{}))
}
