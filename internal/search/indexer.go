package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

const eventMapping = `{
  "mappings": {
    "properties": {
      "title":         {"type": "text", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "description":   {"type": "text"},
      "start_date":    {"type": "date", "format": "yyyy-MM-dd"},
      "start_time":    {"type": "keyword"},
      "end_date":      {"type": "date", "format": "yyyy-MM-dd"},
      "is_all_day":    {"type": "boolean"},
      "venue_name":    {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "venue_address": {"type": "text"},
      "price_min":     {"type": "scaled_float", "scaling_factor": 100},
      "price_max":     {"type": "scaled_float", "scaling_factor": 100},
      "is_free":       {"type": "boolean"},
      "tags":          {"type": "keyword"},
      "source_id":     {"type": "keyword"},
      "confidence":    {"type": "float"},
      "content_hash":  {"type": "keyword"},
      "last_seen_at":  {"type": "date"}
    }
  }
}`

// Document is the indexed form of a canonical event.
type Document struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	StartDate    string   `json:"start_date"`
	StartTime    *string  `json:"start_time,omitempty"`
	EndDate      *string  `json:"end_date,omitempty"`
	EndTime      *string  `json:"end_time,omitempty"`
	IsAllDay     bool     `json:"is_all_day"`
	VenueName    string   `json:"venue_name,omitempty"`
	VenueAddress string   `json:"venue_address,omitempty"`
	PriceMin     *float64 `json:"price_min,omitempty"`
	PriceMax     *float64 `json:"price_max,omitempty"`
	IsFree       *bool    `json:"is_free,omitempty"`
	TicketURL    string   `json:"ticket_url,omitempty"`
	SourceURL    string   `json:"source_url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	SourceID     string   `json:"source_id"`
	Confidence   float64  `json:"confidence"`
	ContentHash  string   `json:"content_hash"`
	LastSeenAt   string   `json:"last_seen_at"`
}

// NewDocument converts e to its indexed form.
func NewDocument(e *domain.Event) Document {
	doc := Document{
		Title:        e.Title,
		Description:  e.Description,
		StartDate:    e.StartDate.Format(domain.DateLayout),
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		IsAllDay:     e.IsAllDay,
		VenueName:    e.VenueName,
		VenueAddress: e.VenueAddress,
		PriceMin:     e.PriceMin,
		PriceMax:     e.PriceMax,
		IsFree:       e.IsFree,
		TicketURL:    e.TicketURL,
		SourceURL:    e.SourceURL,
		ImageURL:     e.ImageURL,
		Tags:         e.Tags,
		SourceID:     e.SourceID,
		Confidence:   e.Confidence,
		ContentHash:  e.ContentHash,
		LastSeenAt:   e.LastSeenAt.UTC().Format(time.RFC3339),
	}
	if e.EndDate != nil {
		end := e.EndDate.Format(domain.DateLayout)
		doc.EndDate = &end
	}
	return doc
}

// Indexer writes events to one index, keyed by event ID.
type Indexer struct {
	client *es.Client
	index  string
}

// NewIndexer creates an Indexer for index.
func NewIndexer(client *es.Client, index string) *Indexer {
	if index == "" {
		index = defaultIndex
	}
	return &Indexer{client: client, index: index}
}

// EnsureIndex creates the index with the event mapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", i.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithBody(strings.NewReader(eventMapping)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", i.index, res.String())
	}
	return nil
}

// Publish bulk-indexes canonical events. Demoted aliases are skipped.
func (i *Indexer) Publish(ctx context.Context, events []*domain.Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	n := 0
	for _, e := range events {
		if !e.IsCanonical() {
			continue
		}
		meta := map[string]any{"index": map[string]any{"_index": i.index, "_id": e.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}
		if err := enc.Encode(NewDocument(e)); err != nil {
			return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
		}
		n++
	}
	if n == 0 {
		return nil
	}

	res, err := i.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		i.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk indexing error: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read bulk response: %w", err)
	}
	if gjson.GetBytes(body, "errors").Bool() {
		reasons := gjson.GetBytes(body, "items.#.index.error.reason").Array()
		reason := "unknown"
		if len(reasons) > 0 {
			reason = reasons[0].String()
		}
		return fmt.Errorf("bulk indexing rejected documents: %s", reason)
	}
	return nil
}
