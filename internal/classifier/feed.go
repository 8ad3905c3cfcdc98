package classifier

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Feed kinds reported by sniffFeed.
const (
	FeedICal = "ical"
	FeedRSS  = "rss"
	FeedAtom = "atom"
)

const sniffWindow = 1024

var feedLinkTypes = []string{"rss+xml", "atom+xml", "text/calendar", "rdf+xml"}

// sniffFeed identifies calendar, RSS and Atom bodies from their first bytes.
// XML candidates must also parse as a feed.
func sniffFeed(body []byte) string {
	head := body
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	lower := strings.ToLower(string(bytes.TrimSpace(head)))

	if strings.HasPrefix(lower, "begin:vcalendar") {
		return FeedICal
	}

	var kind string
	switch {
	case strings.Contains(lower, "<rss"), strings.Contains(lower, "<rdf:rdf"):
		kind = FeedRSS
	case strings.Contains(lower, "<feed"):
		kind = FeedAtom
	default:
		return ""
	}
	if strings.Contains(lower, "<html") {
		return ""
	}
	if _, err := gofeed.NewParser().ParseString(string(body)); err != nil {
		return ""
	}
	return kind
}

// discoverFeedLinks returns absolute URLs of advertised feeds and calendar files, in page order.
func discoverFeedLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := map[string]bool{}
	add := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if strings.HasPrefix(strings.ToLower(href), "webcal://") {
			href = "https://" + href[len("webcal://"):]
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	}

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		linkType, _ := s.Attr("type")
		if !isFeedType(linkType) {
			return
		}
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		lower := strings.ToLower(href)
		path := lower
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
		if strings.HasSuffix(path, ".ics") || strings.HasPrefix(lower, "webcal://") || strings.Contains(lower, "ical=1") {
			add(href)
		}
	})
	return links
}

func isFeedType(linkType string) bool {
	linkType = strings.ToLower(linkType)
	for _, t := range feedLinkTypes {
		if strings.Contains(linkType, t) {
			return true
		}
	}
	return false
}
