package fingerprint_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fingerprint"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Jazz Night", "jazz night"},
		{"whitespace", "  Jazz \t\n  Night ", "jazz night"},
		{"punctuation", "Jazz-Night!!! (Live)", "jazz night live"},
		{"diacritics", "Café Beyoncé Début", "cafe beyonce debut"},
		{"apostrophes", "Rock’n’Roll Hall's", "rocknroll halls"},
		{"digits kept", "Night #2 @ 9pm", "night 2 9pm"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fingerprint.Normalize(tt.in))
		})
	}
}

func TestNormalize_Truncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ab ", 1000)
	got := fingerprint.Normalize(long)
	assert.LessOrEqual(t, len([]rune(got)), fingerprint.MaxFieldRunes)
	assert.Equal(t, strings.TrimSpace(got), got)
}

func TestFingerprint_GoldenValue(t *testing.T) {
	t.Parallel()

	// sha256("jazz night|the eastern|2026-02-06"); changing this breaks stored hashes
	const want = "c1507c651614ab4a50c02cc539f4b0a75cb3abdd58ca5e92f304cbefb1b751ca"

	assert.Equal(t, want, fingerprint.Fingerprint("Jazz Night", "The Eastern", date(t, "2026-02-06")))
	assert.Equal(t, want, fingerprint.Fingerprint("jazz night", "the eastern", date(t, "2026-02-06")))
}

func TestFingerprint_StableAcrossVariation(t *testing.T) {
	t.Parallel()

	d := date(t, "2026-02-06")
	base := fingerprint.Fingerprint("Jazz Night", "The Eastern", d)

	variants := [][2]string{
		{"jazz night", "the eastern"},
		{"  JAZZ   NIGHT ", "The  Eastern"},
		{"Jazz Night.", "The Eastern!"},
	}
	for _, v := range variants {
		assert.Equal(t, base, fingerprint.Fingerprint(v[0], v[1], d), "variant %q", v)
	}

	for range 100 {
		assert.Equal(t, base, fingerprint.Fingerprint("Jazz Night", "The Eastern", d))
	}
}

func TestFingerprint_DistinguishesFields(t *testing.T) {
	t.Parallel()

	d := date(t, "2026-02-06")
	base := fingerprint.Fingerprint("Jazz Night", "The Eastern", d)

	assert.NotEqual(t, base, fingerprint.Fingerprint("Jazz Night", "The Masquerade", d))
	assert.NotEqual(t, base, fingerprint.Fingerprint("Blues Night", "The Eastern", d))
	assert.NotEqual(t, base, fingerprint.Fingerprint("Jazz Night", "The Eastern", d.AddDate(0, 0, 1)))
	// the separator keeps field boundaries significant
	assert.NotEqual(t,
		fingerprint.Fingerprint("a b", "c", d),
		fingerprint.Fingerprint("a", "b c", d))
}

func TestFingerprint_IgnoresTimeOfDay(t *testing.T) {
	t.Parallel()

	morning := time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 2, 6, 21, 0, 0, 0, time.UTC)
	assert.Equal(t,
		fingerprint.Fingerprint("Jazz Night", "The Eastern", morning),
		fingerprint.Fingerprint("Jazz Night", "The Eastern", evening))
}

func TestOf(t *testing.T) {
	t.Parallel()

	c := &domain.RawEventCandidate{Title: "Jazz Night", VenueName: "The Eastern", StartDate: date(t, "2026-02-06")}
	assert.Equal(t, fingerprint.Fingerprint("Jazz Night", "The Eastern", c.StartDate), fingerprint.Of(c))
}
