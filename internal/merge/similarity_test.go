package merge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/merge"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Jazz Night", "jazz night", 1, 1},
		{"Comedy Showcase", "Comedy Show Case", 1, 1},
		{"Jazz Night at The Eastern", "Jazz Night @ The Eastern", 0.94, 0.95},
		{"Jazz Night", "The Jazz Night", 0.84, 0.85},
		{"Poetry Slam", "Jazz Night", 0, 0},
		{"A", "B", 0, 0},
	}
	for _, tt := range tests {
		got := merge.Similarity(tt.a, tt.b)
		assert.GreaterOrEqual(t, got, tt.min, "%q vs %q", tt.a, tt.b)
		assert.LessOrEqual(t, got, tt.max, "%q vs %q", tt.a, tt.b)
	}
}

func TestIsNearDuplicate(t *testing.T) {
	t.Parallel()

	ev := func(title string, start *string) *domain.Event {
		return &domain.Event{Title: title, StartTime: start}
	}

	assert.True(t, merge.IsNearDuplicate(ev("Friday Night Jazz Jam", nil), ev("Friday Night Jazz Jams", strPtr("20:00")), 0.9))
	assert.False(t, merge.IsNearDuplicate(ev("Jazz Night: Vol. 2", nil), ev("Jazz Night: Vol. 3", nil), 0.9))
	assert.False(t, merge.IsNearDuplicate(ev("Jazz Jam", strPtr("18:00")), ev("Jazz Jams", strPtr("21:00")), 0.9))
	assert.False(t, merge.IsNearDuplicate(ev("Jazz Night", nil), ev("The Jazz Night", nil), 0.9))
}
