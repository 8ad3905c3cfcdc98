package merge

import (
	"strings"
	"unicode"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fingerprint"
)

// Similarity is the Sørensen-Dice coefficient over character bigrams of the normalised titles.
func Similarity(a, b string) float64 {
	ra := []rune(strings.ReplaceAll(fingerprint.Normalize(a), " ", ""))
	rb := []rune(strings.ReplaceAll(fingerprint.Normalize(b), " ", ""))
	if string(ra) == string(rb) {
		return 1
	}
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i+1 < len(ra); i++ {
		bigrams[[2]rune{ra[i], ra[i+1]}]++
	}
	shared := 0
	for i := 0; i+1 < len(rb); i++ {
		k := [2]rune{rb[i], rb[i+1]}
		if bigrams[k] > 0 {
			bigrams[k]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}

// IsNearDuplicate reports whether two events at the same venue and date are one occurrence.
// Titles must be at least threshold similar, carry the same numbers ("Vol. 2" is not "Vol. 3")
// and the start times must not disagree.
func IsNearDuplicate(a, b *domain.Event, threshold float64) bool {
	if a.StartTime != nil && b.StartTime != nil && *a.StartTime != *b.StartTime {
		return false
	}
	if numbers(a.Title) != numbers(b.Title) {
		return false
	}
	return Similarity(a.Title, b.Title) >= threshold
}

func numbers(s string) string {
	var sb strings.Builder
	inNum := false
	for _, r := range fingerprint.Normalize(s) {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
			inNum = true
			continue
		}
		if inNum {
			sb.WriteByte(' ')
			inNum = false
		}
	}
	return strings.TrimSpace(sb.String())
}
