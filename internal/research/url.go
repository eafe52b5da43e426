package research

import (
	"net/url"
	"strings"
)

// DefaultSearchBaseURL is the public AustLII SINO search endpoint.
const DefaultSearchBaseURL = "https://www.austlii.edu.au/cgi-bin/sinosrch.cgi"

// BuildSearchURL builds the share link locally when the link tool is
// unavailable. The same inputs always give the same URL.
func BuildSearchURL(base, query string, databases []string, method string) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultSearchBaseURL
	}
	v := url.Values{}
	v.Set("query", query)
	v.Set("method", method)
	v.Set("meta", "/au")
	for _, db := range databases {
		v.Add("mask_path", db)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + v.Encode()
}
