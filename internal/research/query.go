package research

import (
	"regexp"
	"strings"
)

var dateOperators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdate\s*\(.*?\)`),
	regexp.MustCompile(`(?i)\bdate\s*><\s*\S+\s+\S+`),
	regexp.MustCompile(`(?i)\bdate\s*(?:>=|<=|>|<)\s*\S+`),
}

// SanitizeQuery strips SINO date operators from a planned query, collapses
// whitespace and falls back to a wildcard when nothing is left. Year
// filtering is done on the results instead.
func SanitizeQuery(q string) string {
	for _, re := range dateOperators {
		q = re.ReplaceAllString(q, " ")
	}
	q = strings.Join(strings.Fields(q), " ")
	if q == "" {
		return "*"
	}
	return q
}

// Search methods understood by the remote search tool.
const (
	MethodAuto    = "auto"
	MethodBoolean = "boolean"
)

// scopeHints are substrings that show the user already named a court,
// jurisdiction or time frame. Short codes are space padded so "act" does not
// match "contract"; the prompt is padded the same way before matching.
var scopeHints = []string{
	" hca", " fca", " fcafc", "high court", "federal court", "full court",
	"supreme court", "court of appeal", "tribunal", " aat", " fwc",
	" nsw", "new south wales", " vic ", "victoria", " qld", "queensland",
	"tasmania", "western australia", "south australia", "northern territory",
	" act ", " cth", "commonwealth", "federal",
	"recent", "latest", "since", "before", "after", "between", "last year",
	"this year", "decade",
}

// yearWord matches a standalone four digit year, so "2019" counts as a time
// frame but "20 cases" and "1990s" do not.
var yearWord = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

// IsVague reports whether prompt is short (three words or fewer) or names no
// court, jurisdiction or time frame.
func IsVague(prompt string) bool {
	if len(strings.Fields(prompt)) <= 3 {
		return true
	}
	p := " " + strings.ToLower(strings.Join(strings.Fields(prompt), " ")) + " "
	for _, h := range scopeHints {
		if strings.Contains(p, h) {
			return false
		}
	}
	return !yearWord.MatchString(p)
}

// SelectMethod picks the looser adaptive search for vague prompts and strict
// boolean search otherwise.
func SelectMethod(prompt string) string {
	if IsVague(prompt) {
		return MethodAuto
	}
	return MethodBoolean
}
