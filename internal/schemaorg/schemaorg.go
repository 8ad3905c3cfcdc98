// Package schemaorg reads schema.org Event objects out of application/ld+json blocks.
package schemaorg

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Event is the subset of a schema.org Event used for extraction.
type Event struct {
	Types       []string
	Name        string
	Description string
	StartDate   string
	EndDate     string
	URL         string
	Image       string
	Location    Place
	Offers      []Offer
	Status      string
	Keywords    []string
}

// Place is a schema.org Place or a bare location string.
type Place struct {
	Name    string
	Address string
}

// Offer is a schema.org Offer.
type Offer struct {
	URL       string
	Price     string
	LowPrice  string
	HighPrice string
	Currency  string
}

// TicketURL returns the first offer URL.
func (e *Event) TicketURL() string {
	for _, o := range e.Offers {
		if o.URL != "" {
			return o.URL
		}
	}
	return ""
}

// IsComplete reports whether the markup alone can populate a catalog entry:
// a name and start date plus at least two of ticket URL, image and description.
func (e *Event) IsComplete() bool {
	if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.StartDate) == "" {
		return false
	}
	extras := 0
	if e.TicketURL() != "" || e.URL != "" {
		extras++
	}
	if e.Image != "" {
		extras++
	}
	if strings.TrimSpace(e.Description) != "" {
		extras++
	}
	return extras >= 2
}

// Extract returns every schema.org event found in the ld+json scripts under root.
// Blocks that fail to decode are skipped.
func Extract(root *goquery.Selection) []Event {
	var events []Event
	root.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return
		}
		walk(v, &events)
	})
	return events
}

// ExtractDocument is Extract over a whole document.
func ExtractDocument(doc *goquery.Document) []Event {
	return Extract(doc.Selection)
}

func walk(v any, out *[]Event) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			walk(item, out)
		}
	case map[string]any:
		if graph, ok := node["@graph"]; ok {
			walk(graph, out)
		}
		types := stringsOf(node["@type"])
		if isEventType(types) {
			*out = append(*out, toEvent(node, types))
			return
		}
		// ItemList / WebPage wrappers
		for _, key := range []string{"itemListElement", "item", "mainEntity", "subEvent", "event", "events"} {
			if child, ok := node[key]; ok {
				walk(child, out)
			}
		}
	}
}

func isEventType(types []string) bool {
	for _, t := range types {
		t = strings.TrimPrefix(t, "schema:")
		t = strings.TrimPrefix(t, "http://schema.org/")
		t = strings.TrimPrefix(t, "https://schema.org/")
		if strings.HasSuffix(t, "Event") || t == "Festival" {
			return true
		}
	}
	return false
}

func toEvent(node map[string]any, types []string) Event {
	return Event{
		Types:       types,
		Name:        text(node["name"]),
		Description: text(node["description"]),
		StartDate:   text(node["startDate"]),
		EndDate:     text(node["endDate"]),
		URL:         urlOf(node["url"]),
		Image:       urlOf(node["image"]),
		Location:    place(node["location"]),
		Offers:      offers(node["offers"]),
		Status:      text(node["eventStatus"]),
		Keywords:    keywords(node["keywords"]),
	}
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) > 0 {
			return text(t[0])
		}
	case map[string]any:
		if s := text(t["@value"]); s != "" {
			return s
		}
		return text(t["name"])
	}
	return ""
}

func urlOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if u := urlOf(item); u != "" {
				return u
			}
		}
	case map[string]any:
		if u := urlOf(t["url"]); u != "" {
			return u
		}
		return urlOf(t["contentUrl"])
	}
	return ""
}

func place(v any) Place {
	switch t := v.(type) {
	case string:
		return Place{Name: strings.TrimSpace(t)}
	case []any:
		if len(t) > 0 {
			return place(t[0])
		}
	case map[string]any:
		return Place{Name: text(t["name"]), Address: address(t["address"])}
	}
	return Place{}
}

func address(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		var parts []string
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"} {
			if s := text(t[key]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func offers(v any) []Offer {
	switch t := v.(type) {
	case []any:
		var out []Offer
		for _, item := range t {
			out = append(out, offers(item)...)
		}
		return out
	case map[string]any:
		if nested, ok := t["offers"]; ok {
			return offers(nested)
		}
		return []Offer{{
			URL:       urlOf(t["url"]),
			Price:     text(t["price"]),
			LowPrice:  text(t["lowPrice"]),
			HighPrice: text(t["highPrice"]),
			Currency:  text(t["priceCurrency"]),
		}}
	}
	return nil
}

func keywords(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Split(t, ",")
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := text(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
