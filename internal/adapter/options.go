package adapter

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

// DecodeOptions decodes src.Config into out, a pointer to an options struct with mapstructure tags.
func DecodeOptions(src *domain.Source, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if src.Config == nil {
		return nil
	}
	if err = decoder.Decode(map[string]any(src.Config)); err != nil {
		return fmt.Errorf("decode %s options: %w", src.Slug, err)
	}
	return nil
}

var strict = bluemonday.StrictPolicy()

// CleanText strips markup from s and collapses whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(s))), " ")
}

// ApplyVenueDefaults fills the venue on candidates from the source's venue options.
// Feed and API sources usually describe a single venue.
func ApplyVenueDefaults(src *domain.Source, candidates []domain.RawEventCandidate) {
	name := src.ConfigString("venue_name")
	address := src.ConfigString("venue_address")
	venueID := src.ConfigString("venue_id")

	for i := range candidates {
		c := &candidates[i]
		if c.VenueName == "" {
			c.VenueName = name
		}
		if c.VenueAddress == "" {
			c.VenueAddress = address
		}
		if c.VenueID == nil && venueID != "" {
			id := venueID
			c.VenueID = &id
		}
	}
}
