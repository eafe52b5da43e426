// Package json is the project-wide JSON codec. Hot paths (stream events, tool-call frames,
// result payloads) go through sonic so output stays consistent everywhere.
package json

import (
	stdjson "encoding/json"

	"github.com/bytedance/sonic"
)

// RawMessage is re-exported so callers do not need a second JSON import.
type RawMessage = stdjson.RawMessage

var api = sonic.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseNumber:   true,
	CopyString:  true,
}.Froze()

func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

func MarshalString(v any) (string, error) { return api.MarshalToString(v) }

func UnmarshalString(data string, v any) error { return api.UnmarshalFromString(data, v) }

func Valid(data []byte) bool { return api.Valid(data) }
