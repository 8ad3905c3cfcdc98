package classifier_test

import (
	"context"
	"strings"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
)

// page is a canned response.
type page struct {
	contentType string
	body        string
}

// urlMockFetcher serves canned pages by URL and 404s everything else.
type urlMockFetcher struct {
	pages map[string]page
	calls []string
}

func (m *urlMockFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	m.calls = append(m.calls, rawURL)
	p, ok := m.pages[rawURL]
	if !ok {
		return nil, crawlerr.FromHTTPStatus(404, rawURL)
	}
	ct := p.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &fetch.Response{
		URL:         rawURL,
		FinalURL:    rawURL,
		StatusCode:  200,
		ContentType: ct,
		Body:        []byte(p.body),
	}, nil
}

func (m *urlMockFetcher) fetched(rawURL string) bool {
	for _, c := range m.calls {
		if c == rawURL {
			return true
		}
	}
	return false
}

const venue = "https://theeastern.example"

const completeJSONLD = `<script type="application/ld+json">
{"@context":"https://schema.org","@type":"MusicEvent","name":"Jazz Night",
 "startDate":"2026-02-06T20:00","description":"An evening of jazz.",
 "image":"https://theeastern.example/jazz.jpg",
 "offers":{"@type":"Offer","url":"https://tix.example/x"},
 "location":{"@type":"Place","name":"The Eastern"}}
</script>`

const partialJSONLD = `<script type="application/ld+json">
{"@type":"Event","name":"Open Mic","startDate":"2026-03-01"}
</script>`

const validRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Shows</title>
<item><title>Jazz Night</title><link>https://theeastern.example/e/1</link></item>
</channel></rss>`

const validICS = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Venue//EN\r\nBEGIN:VEVENT\r\nUID:1\r\nSUMMARY:Jazz Night\r\nDTSTART:20260206T200000\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

// prose returns n sentences of visible text.
func prose(n int) string {
	return strings.Repeat("<p>Live music every night of the week at our downtown venue.</p>\n", n)
}

func html(head, body string) string {
	return "<!DOCTYPE html><html><head><title>The Eastern</title>" + head + "</head><body>" + body + "</body></html>"
}
