package adapter

import (
	"regexp"
	"strconv"
	"strings"
)

var pricePattern = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?`)

// ParsePriceText reads a price range from display text like "$15 - $25", "From $10" or "Free".
func ParsePriceText(text string) (lowest, highest *float64, free *bool) {
	var nums []float64
	if strings.Contains(strings.ToLower(text), "free") {
		nums = append(nums, 0)
	}
	for _, m := range pricePattern.FindAllString(text, -1) {
		if n, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64); err == nil {
			nums = append(nums, n)
		}
	}
	return PriceRange(nums)
}

// PriceRange returns the lowest and highest of nums. free is set when any price is known
// and the highest is zero.
func PriceRange(nums []float64) (lowest, highest *float64, free *bool) {
	for _, n := range nums {
		if lowest == nil || n < *lowest {
			v := n
			lowest = &v
		}
		if highest == nil || n > *highest {
			v := n
			highest = &v
		}
	}
	if highest != nil {
		isFree := *highest == 0
		free = &isFree
	}
	return lowest, highest, free
}
