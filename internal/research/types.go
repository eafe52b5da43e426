// Package research runs one legal research request end to end: plan a query,
// run the remote search tool while relaying its progress, filter and preview
// the hits, resolve a shareable link and summarise.
package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/konashevich/olexi-host/internal/pkg/json"
	"github.com/konashevich/olexi-host/internal/results"
)

// Request is a validated research request.
type Request struct {
	Prompt       string `json:"prompt"`
	MaxResults   int    `json:"maxResults"`
	MaxDatabases int    `json:"maxDatabases"`
	YearFrom     *int   `json:"yearFrom,omitempty"`
	YearTo       *int   `json:"yearTo,omitempty"`
}

// Plan is the planner's output after sanitation.
type Plan struct {
	Query     string   `json:"query"`
	Databases []string `json:"databases"`
}

// Database describes one searchable AustLII collection offered to the planner.
type Database struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Planner turns a prompt into a search plan.
type Planner interface {
	Plan(ctx context.Context, prompt string, databases []Database, maxDatabases int) (Plan, error)
}

// Summarizer writes the final Markdown answer from the preview items.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, items []results.Item) (string, error)
}

// Progress is one progress notification from a running tool call.
type Progress struct {
	Progress float64
	Total    float64
	Message  string
}

// ToolSession is an open remote tool-call session.
type ToolSession interface {
	Call(ctx context.Context, tool string, args map[string]any, onProgress func(Progress)) (json.RawMessage, error)
	Close(ctx context.Context) error
}

// ToolTransport opens tool-call sessions.
type ToolTransport interface {
	Open(ctx context.Context) (ToolSession, error)
}

// LinkCache remembers share links resolved by the link tool.
type LinkCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, url string) error
}

// Error codes carried by the terminal error event.
const (
	CodePlanningFailed  = "PLANNING_FAILED"
	CodeMCPError        = "MCP_ERROR"
	CodeSummarizeFailed = "SUMMARIZE_FAILED"
)

// ErrLinkBuild is logged when the link tool fails; it never reaches a client.
var ErrLinkBuild = errors.New("link build failed")

// StageError is a fatal pipeline failure.
type StageError struct {
	Code string
	Err  error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }
