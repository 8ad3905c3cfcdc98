package htmlsel

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/jsonld"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/dateparse"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/schemaorg"
)

// Selectors are CSS selectors for one event listing. Field selectors are relative to Item.
type Selectors struct {
	Item        string `mapstructure:"item"`
	Title       string `mapstructure:"title"`
	Date        string `mapstructure:"date"`
	DateAttr    string `mapstructure:"date_attr"`
	Time        string `mapstructure:"time"`
	Venue       string `mapstructure:"venue"`
	Address     string `mapstructure:"address"`
	Description string `mapstructure:"description"`
	Link        string `mapstructure:"link"`
	Image       string `mapstructure:"image"`
	Price       string `mapstructure:"price"`
	Tags        string `mapstructure:"tags"`
	Next        string `mapstructure:"next"`
}

// DefaultSelectors match common WordPress and microdata event listings.
var DefaultSelectors = Selectors{
	Item:        `[itemtype*="schema.org/Event"], .tribe-events-calendar-list__event, .event-item, article.event, .event`,
	Title:       `[itemprop="name"], h1, h2, h3, .title, .event-title`,
	Date:        `[itemprop="startDate"], time, .date, .event-date`,
	DateAttr:    "datetime",
	Venue:       `[itemprop="location"] [itemprop="name"], .venue, .location`,
	Description: `[itemprop="description"], .description, .excerpt, p`,
	Link:        "a[href]",
	Image:       "img[src]",
	Price:       `[itemprop="price"], .price, .cost`,
	Next:        `a[rel="next"], .next a, a.next`,
}

// WithDefaults fills unset selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors
	for _, pair := range []struct {
		dst *string
		def string
	}{
		{&s.Item, d.Item},
		{&s.Title, d.Title},
		{&s.Date, d.Date},
		{&s.DateAttr, d.DateAttr},
		{&s.Venue, d.Venue},
		{&s.Description, d.Description},
		{&s.Link, d.Link},
		{&s.Image, d.Image},
		{&s.Price, d.Price},
		{&s.Next, d.Next},
	} {
		if *pair.dst == "" {
			*pair.dst = pair.def
		}
	}
	return s
}

// ExtractSelection reads candidates from root. Structured data in the page wins over selectors.
// Items whose date cannot be parsed are kept with a zero StartDate so validation can count them.
func ExtractSelection(root *goquery.Selection, base *url.URL, sel Selectors, confidence float64) []domain.RawEventCandidate {
	if structured := jsonld.Convert(schemaorg.Extract(root), base); len(structured) > 0 {
		return structured
	}

	var out []domain.RawEventCandidate
	root.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		c := domain.RawEventCandidate{
			Title:        firstText(item, sel.Title),
			Description:  firstText(item, sel.Description),
			VenueName:    firstText(item, sel.Venue),
			VenueAddress: firstText(item, sel.Address),
			SourceURL:    firstAttr(item, sel.Link, "href", base),
			ImageURL:     imageURL(item, sel.Image, base),
			Confidence:   confidence,
		}
		if c.Title == "" {
			return
		}
		c.TicketURL = c.SourceURL

		raw := firstAttrRaw(item, sel.Date, sel.DateAttr)
		if raw == "" {
			raw = firstText(item, sel.Date)
		}
		if r, err := dateparse.Parse(raw); err == nil {
			c.StartDate, c.StartTime = r.Date, r.Time
		}
		if c.StartTime == nil && sel.Time != "" {
			if clock, err := dateparse.ParseClock(firstText(item, sel.Time)); err == nil {
				c.StartTime = clock
			}
		}

		if sel.Tags != "" {
			var tags []string
			item.Find(sel.Tags).Each(func(_ int, s *goquery.Selection) {
				tags = append(tags, s.Text())
			})
			c.Tags = domain.NormalizeTags(tags)
		}
		if price := firstText(item, sel.Price); price != "" {
			c.PriceMin, c.PriceMax, c.IsFree = adapter.ParsePriceText(price)
		}

		out = append(out, c)
	})
	return out
}

// NextPage returns the absolute URL of the pagination link, if any.
func NextPage(root *goquery.Selection, base *url.URL, selector string) string {
	if selector == "" {
		return ""
	}
	return firstAttr(root, selector, "href", base)
}

func firstText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return ""
	}
	if content, ok := found.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return adapter.CleanText(content)
	}
	return adapter.CleanText(found.Text())
}

func firstAttrRaw(s *goquery.Selection, selector, attr string) string {
	if selector == "" || attr == "" {
		return ""
	}
	v, _ := s.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

func firstAttr(s *goquery.Selection, selector, attr string, base *url.URL) string {
	return absolute(base, firstAttrRaw(s, selector, attr))
}

func imageURL(s *goquery.Selection, selector string, base *url.URL) string {
	img := s.Find(selector).First()
	for _, attr := range []string{"data-src", "src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return absolute(base, strings.TrimSpace(v))
		}
	}
	return ""
}

func absolute(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
