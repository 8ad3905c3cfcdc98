// Package fingerprint computes the content hash that identifies one physical event occurrence.
//
// The normalisation steps and hash layout are a stable storage contract: existing
// content_hash values stay valid only while Fingerprint returns identical output for
// identical input. Do not change them without a data migration.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

// MaxFieldRunes bounds each normalised field before hashing.
const MaxFieldRunes = 256

const separator = "|"

// Normalize lowercases s, strips diacritics and punctuation, collapses whitespace
// and truncates the result to MaxFieldRunes runes.
func Normalize(s string) string {
	s = stripDiacritics(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case isApostrophe(r):
			// dropped so "Rock'n'Roll" and "Rocknroll" agree
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if r := []rune(out); len(r) > MaxFieldRunes {
		out = strings.TrimSpace(string(r[:MaxFieldRunes]))
	}
	return out
}

// Fingerprint returns the hex SHA-256 of the normalised title, venue and start date.
func Fingerprint(title, venueName string, startDate time.Time) string {
	key := Normalize(title) + separator + Normalize(venueName) + separator + startDate.Format(domain.DateLayout)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Of fingerprints a candidate.
func Of(c *domain.RawEventCandidate) string {
	return Fingerprint(c.Title, c.VenueName, c.StartDate)
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '‘', '’', '`':
		return true
	}
	return false
}
