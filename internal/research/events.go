package research

import "github.com/konashevich/olexi-host/internal/results"

// Event names on the wire.
const (
	EventProgress       = "progress"
	EventResultsPreview = "results_preview"
	EventAnswer         = "answer"
	EventError          = "error"
)

// Progress stages.
const (
	StagePlanning = "planning"
	StageSearch   = "search"
)

// Event is one server-sent event. Data is JSON encoded by the sink.
type Event struct {
	Name string
	Data any
}

// Sink receives the events of one request in order. An error from Send means
// the client is gone and nothing more will be sent.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

type ProgressData struct {
	Stage     string   `json:"stage"`
	Message   string   `json:"message"`
	Query     string   `json:"query,omitempty"`
	Databases []string `json:"databases,omitempty"`
	Method    string   `json:"method,omitempty"`
	Pct       *float64 `json:"pct,omitempty"`
}

type PreviewData struct {
	Items           []results.Item `json:"items"`
	TotalUnfiltered int            `json:"total_unfiltered"`
	TotalFiltered   int            `json:"total_filtered"`
}

type AnswerData struct {
	Markdown string `json:"markdown"`
	URL      string `json:"url"`
}

type ErrorData struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}
