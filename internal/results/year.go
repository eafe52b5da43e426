package results

import (
	"regexp"
	"strconv"
)

var (
	// Medium neutral citation: "Smith v Jones [2019] HCA 12".
	bracketYear = regexp.MustCompile(`\[(\d{4})\]`)
	// Judgment date: "Re X (3 March 2020)".
	parenDateYear = regexp.MustCompile(`\(\d{1,2}\s+[A-Za-z]+\s+(\d{4})\)`)
)

// ExtractYear pulls a four digit year from a case title, preferring the
// bracketed citation year over a parenthesised date.
func ExtractYear(title string) (int, bool) {
	for _, re := range []*regexp.Regexp{bracketYear, parenDateYear} {
		if m := re.FindStringSubmatch(title); m != nil {
			y, err := strconv.Atoi(m[1])
			if err == nil {
				return y, true
			}
		}
	}
	return 0, false
}

// FilterByYear keeps items whose title year is within the inclusive bounds.
// With both bounds nil every item passes in order. With any bound set, items
// without a recognisable year are dropped.
func FilterByYear(items []Item, from, to *int) []Item {
	if from == nil && to == nil {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		y, ok := ExtractYear(it.Title)
		if !ok {
			continue
		}
		if from != nil && y < *from {
			continue
		}
		if to != nil && y > *to {
			continue
		}
		out = append(out, it)
	}
	return out
}
