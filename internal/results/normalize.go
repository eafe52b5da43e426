// Package results turns the search tool's raw reply into an ordered list of
// case items and applies the optional year-range filter.
package results

import (
	"bytes"

	"github.com/konashevich/olexi-host/internal/helpers"
	"github.com/konashevich/olexi-host/internal/pkg/json"
)

// PreviewLimit caps how many items are ever shown to the client or handed to
// the summariser.
const PreviewLimit = 10

// Item is one search hit. Only Title matters to filtering; the rest is passed
// through to the client.
type Item struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Metadata string `json:"metadata,omitempty"`
}

// resultField is the key under which a wrapper object carries the list.
const resultField = "result"

// toolReply is the generic envelope of a tool-call result.
type toolReply struct {
	StructuredContent json.RawMessage `json:"structuredContent"`
	Result            json.RawMessage `json:"result"`
	Content           []contentBlock  `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Normalize extracts the item list from raw. Structured shapes are tried
// first: a bare list, a structuredContent value, or a {"result": [...]}
// wrapper. A structured field that is present decides the outcome on its own.
// Only when none is present are text blocks in the content envelope parsed,
// and the first block that parses wins. Shapes are never merged. Anything
// unrecognised yields an empty list.
func Normalize(raw []byte) []Item {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []Item{}
	}
	if items, ok := parseList(raw); ok {
		return items
	}
	if raw[0] != '{' {
		return []Item{}
	}

	var reply toolReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return []Item{}
	}
	if present(reply.StructuredContent) {
		return orEmpty(parseShape(reply.StructuredContent))
	}
	if present(reply.Result) {
		return orEmpty(parseList(reply.Result))
	}
	for _, block := range reply.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		if items, ok := parseShape([]byte(block.Text)); ok {
			return items
		}
	}
	return []Item{}
}

// parseShape accepts either a bare list or a wrapper object.
func parseShape(raw []byte) ([]Item, bool) {
	raw = bytes.TrimSpace(raw)
	if items, ok := parseList(raw); ok {
		return items, true
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, false
	}
	inner, ok := wrapper[resultField]
	if !ok {
		return nil, false
	}
	return parseList(inner)
}

// parseList decodes a JSON list of hit objects. Each hit is decoded on its own
// so one odd field or entry does not lose the rest of the list; entries that
// are not objects are skipped.
func parseList(raw []byte) ([]Item, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	out := make([]Item, 0, len(entries))
	for _, entry := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			continue
		}
		out = append(out, Item{
			Title:    helpers.PlainText(stringField(fields["title"])),
			URL:      stringField(fields["url"]),
			Metadata: helpers.PlainText(metadataField(fields["metadata"])),
		})
	}
	return out, true
}

// stringField returns raw as a string when it is a JSON string, else "".
func stringField(raw json.RawMessage) string {
	var s string
	if !present(raw) || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// metadataField keeps string metadata as is and renders any other JSON value
// back to compact JSON text.
func metadataField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if !present(raw) {
		return ""
	}
	if raw[0] == '"' {
		return stringField(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	text, err := json.MarshalString(v)
	if err != nil {
		return ""
	}
	return text
}

func orEmpty(items []Item, ok bool) []Item {
	if !ok {
		return []Item{}
	}
	return items
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// PreviewWindow is min(PreviewLimit, max(1, maxResults)).
func PreviewWindow(maxResults int) int {
	return min(PreviewLimit, max(1, maxResults))
}

// Preview truncates items to the preview window for maxResults.
func Preview(items []Item, maxResults int) []Item {
	n := PreviewWindow(maxResults)
	if len(items) <= n {
		return items
	}
	return items[:n]
}
