package research

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/konashevich/olexi-host/internal/linkcache"
	"github.com/konashevich/olexi-host/internal/pkg/json"
	"github.com/konashevich/olexi-host/internal/results"
)

// Outcome statuses.
const (
	StatusAnswered  = "answered"
	StatusErrored   = "errored"
	StatusCancelled = "cancelled"
)

// Stage names used for spans and duration metrics.
const (
	stagePlanning    = "planning"
	stageSearching   = "searching"
	stageLinkBuild   = "link_building"
	stageSummarizing = "summarizing"
)

// ErrClientGone wraps a failed Send: the stream is closed and nothing more is
// written to it.
var ErrClientGone = errors.New("client disconnected")

// Config tunes an Orchestrator. Zero values take the defaults.
type Config struct {
	SearchTool          string
	LinkTool            string
	SearchTimeout       time.Duration
	LinkTimeout         time.Duration
	PlanTimeout         time.Duration
	SummarizeTimeout    time.Duration
	SearchBaseURL       string
	DefaultDatabases    []string
	DefaultMaxResults   int
	DefaultMaxDatabases int
	Catalog             []Database
}

func (c Config) withDefaults() Config {
	if c.SearchTool == "" {
		c.SearchTool = "search_austlii"
	}
	if c.LinkTool == "" {
		c.LinkTool = "build_search_url"
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 90 * time.Second
	}
	if c.LinkTimeout <= 0 {
		c.LinkTimeout = 10 * time.Second
	}
	if c.PlanTimeout <= 0 {
		c.PlanTimeout = 60 * time.Second
	}
	if c.SummarizeTimeout <= 0 {
		c.SummarizeTimeout = 60 * time.Second
	}
	if c.SearchBaseURL == "" {
		c.SearchBaseURL = DefaultSearchBaseURL
	}
	if len(c.DefaultDatabases) == 0 {
		c.DefaultDatabases = DefaultDatabases
	}
	if c.DefaultMaxResults <= 0 {
		c.DefaultMaxResults = 25
	}
	if c.DefaultMaxDatabases <= 0 {
		c.DefaultMaxDatabases = 5
	}
	if len(c.Catalog) == 0 {
		c.Catalog = Catalog
	}
	return c
}

// Observer receives stage timings.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
}

// Outcome summarises one run for history and metrics.
type Outcome struct {
	RequestID       string
	Prompt          string
	Plan            Plan
	Method          string
	TotalUnfiltered int
	TotalFiltered   int
	ShareURL        string
	Status          string
	ErrorCode       string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Orchestrator is stateless between requests and safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	planner    Planner
	summarizer Summarizer
	transport  ToolTransport
	links      LinkCache
	observer   Observer
	logger     *log.Logger
	now        func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLinkCache enables share-link caching.
func WithLinkCache(c LinkCache) Option { return func(o *Orchestrator) { o.links = c } }

// WithObserver records stage durations.
func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.observer = obs } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

var researchTracer trace.Tracer = otel.Tracer("olexi/internal/research")

// NewOrchestrator wires the pipeline's collaborators.
func NewOrchestrator(cfg Config, planner Planner, summarizer Summarizer, transport ToolTransport, logger *log.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags)
	}
	o := &Orchestrator{
		cfg:        cfg.withDefaults(),
		planner:    planner,
		summarizer: summarizer,
		transport:  transport,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Defaults returns the maxResults and maxDatabases used when a request leaves
// them unset.
func (o *Orchestrator) Defaults() (maxResults, maxDatabases int) {
	return o.cfg.DefaultMaxResults, o.cfg.DefaultMaxDatabases
}

// run carries the per-request state through the stages.
type run struct {
	ctx  context.Context
	id   string
	req  Request
	sink Sink
	out  *Outcome
}

func (r *run) send(name string, data any) error {
	if err := r.sink.Send(Event{Name: name, Data: data}); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return nil
}

// Run executes the pipeline for one request, writing events to sink in order.
// Exactly one terminal event (answer or error) is sent unless the client goes
// away first. The returned error is nil on an answer, a *StageError after an
// error event, or the cancellation / ErrClientGone cause otherwise.
func (o *Orchestrator) Run(ctx context.Context, requestID string, req Request, sink Sink) (Outcome, error) {
	if req.MaxResults <= 0 {
		req.MaxResults = o.cfg.DefaultMaxResults
	}
	if req.MaxDatabases <= 0 {
		req.MaxDatabases = o.cfg.DefaultMaxDatabases
	}
	out := Outcome{RequestID: requestID, Prompt: req.Prompt, StartedAt: o.now()}
	ctx, span := researchTracer.Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.Int("request.max_results", req.MaxResults),
		attribute.Int("request.max_databases", req.MaxDatabases),
	))
	defer span.End()

	r := &run{ctx: ctx, id: requestID, req: req, sink: sink, out: &out}
	err := o.pipeline(r)
	out.FinishedAt = o.now()
	switch {
	case err == nil:
		out.Status = StatusAnswered
	case errors.As(err, new(*StageError)):
		out.Status = StatusErrored
		span.SetStatus(codes.Error, err.Error())
	default:
		out.Status = StatusCancelled
	}
	return out, err
}

func (o *Orchestrator) pipeline(r *run) error {
	// Planning
	if err := r.send(EventProgress, ProgressData{Stage: StagePlanning, Message: "Planning search strategy…"}); err != nil {
		return err
	}
	plan, err := o.plan(r)
	if err != nil {
		return o.fail(r, CodePlanningFailed, "Planning failed", err)
	}
	r.out.Plan = plan
	if err := r.send(EventProgress, ProgressData{
		Stage:     StagePlanning,
		Message:   "Search plan ready",
		Query:     plan.Query,
		Databases: plan.Databases,
	}); err != nil {
		return err
	}

	// Method selection
	method := SelectMethod(r.req.Prompt)
	r.out.Method = method
	o.logger.Printf("%s planned query=%q databases=%v method=%s", r.id, plan.Query, plan.Databases, method)

	// Searching
	if err := r.send(EventProgress, ProgressData{
		Stage:     StageSearch,
		Message:   "Searching AustLII…",
		Query:     plan.Query,
		Databases: plan.Databases,
		Method:    method,
	}); err != nil {
		return err
	}
	session, err := o.transport.Open(r.ctx)
	if err != nil {
		return o.fail(r, CodeMCPError, "Search service unavailable", err)
	}
	defer o.closeSession(r, session)

	raw, err := o.search(r, session, plan, method)
	if err != nil {
		if errors.Is(err, ErrClientGone) {
			return err
		}
		return o.fail(r, CodeMCPError, "Search failed", err)
	}

	// Normalizing
	items := results.Normalize(raw)
	filtered := results.FilterByYear(items, r.req.YearFrom, r.req.YearTo)
	preview := results.Preview(filtered, r.req.MaxResults)
	r.out.TotalUnfiltered = len(items)
	r.out.TotalFiltered = len(filtered)
	if err := r.send(EventResultsPreview, PreviewData{
		Items:           preview,
		TotalUnfiltered: len(items),
		TotalFiltered:   len(filtered),
	}); err != nil {
		return err
	}

	// Link building never fails the request.
	shareURL := o.shareLink(r, session, plan, method)
	r.out.ShareURL = shareURL

	// Summarizing
	summary, err := o.summarize(r, preview)
	if err != nil {
		return o.fail(r, CodeSummarizeFailed, "Summary failed", err)
	}
	return r.send(EventAnswer, AnswerData{Markdown: summary, URL: shareURL})
}

// fail sends the single error event for a fatal stage failure. A cancelled
// request context means the client is gone and nothing is sent. An expired
// request deadline is an ordinary stage failure and still gets its event.
func (o *Orchestrator) fail(r *run, code, summary string, cause error) error {
	r.out.ErrorCode = code
	if err := r.ctx.Err(); errors.Is(err, context.Canceled) {
		return err
	}
	o.logger.Printf("%s %s: %v", r.id, code, cause)
	_ = r.send(EventError, ErrorData{Code: code, Detail: fmt.Sprintf("%s: %v", summary, cause)})
	return &StageError{Code: code, Err: cause}
}

func (o *Orchestrator) stage(r *run, name string) (context.Context, func(error)) {
	ctx, span := researchTracer.Start(r.ctx, "research."+name)
	start := o.now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if o.observer != nil {
			o.observer.ObserveStage(name, o.now().Sub(start))
		}
	}
}

func (o *Orchestrator) plan(r *run) (plan Plan, err error) {
	ctx, done := o.stage(r, stagePlanning)
	defer func() { done(err) }()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.PlanTimeout)
	defer cancel()
	plan, err = o.planner.Plan(ctx, r.req.Prompt, o.cfg.Catalog, r.req.MaxDatabases)
	if err != nil {
		return Plan{}, err
	}

	plan.Query = SanitizeQuery(plan.Query)
	dbs := make([]string, 0, len(plan.Databases))
	for _, db := range plan.Databases {
		if db = strings.TrimSpace(db); db != "" {
			dbs = append(dbs, db)
		}
	}
	if len(dbs) == 0 {
		dbs = append(dbs, o.cfg.DefaultDatabases...)
	}
	if len(dbs) > r.req.MaxDatabases {
		dbs = dbs[:r.req.MaxDatabases]
	}
	plan.Databases = dbs
	return plan, nil
}

// search runs the search tool in a background goroutine. Its progress
// notifications are queued on a relay and forwarded to the client in arrival
// order until the goroutine closes the relay; only then is the call's error or
// result inspected.
func (o *Orchestrator) search(r *run, session ToolSession, plan Plan, method string) (raw json.RawMessage, err error) {
	ctx, done := o.stage(r, stageSearching)
	defer func() { done(err) }()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
	defer cancel()

	args := map[string]any{
		"query":     plan.Query,
		"databases": plan.Databases,
		"method":    method,
	}
	q := newRelay()
	finished := make(chan struct{})
	var callErr error
	go func() {
		defer close(finished)
		defer q.close()
		raw, callErr = session.Call(callCtx, o.cfg.SearchTool, args, q.push)
	}()

	for {
		p, ok := q.next(r.ctx)
		if !ok {
			break
		}
		if err := r.send(EventProgress, searchProgress(p)); err != nil {
			cancel()
			<-finished
			return nil, err
		}
	}
	if err := r.ctx.Err(); err != nil {
		cancel()
		<-finished
		return nil, err
	}
	<-finished
	if callErr != nil {
		return nil, callErr
	}
	return raw, nil
}

func searchProgress(p Progress) ProgressData {
	d := ProgressData{Stage: StageSearch, Message: p.Message}
	if d.Message == "" {
		d.Message = "Searching…"
	}
	if p.Total > 0 {
		pct := p.Progress / p.Total * 100
		d.Pct = &pct
	}
	return d
}

// shareLink asks the link tool for the canonical search URL and falls back to
// a locally built one on any failure.
func (o *Orchestrator) shareLink(r *run, session ToolSession, plan Plan, method string) string {
	ctx, done := o.stage(r, stageLinkBuild)
	fallback := BuildSearchURL(o.cfg.SearchBaseURL, plan.Query, plan.Databases, method)
	key := linkcache.Key(plan.Query, plan.Databases, method)

	if o.links != nil {
		u, ok, err := o.links.Get(ctx, key)
		if err != nil {
			o.logger.Printf("%s link cache get: %v", r.id, err)
		} else if ok {
			done(nil)
			return u
		}
	}

	u, err := o.buildLink(ctx, session, plan, method)
	done(err)
	if err != nil {
		o.logger.Printf("%s %v; using local url", r.id, err)
		return fallback
	}
	if o.links != nil {
		if err := o.links.Set(ctx, key, u); err != nil {
			o.logger.Printf("%s link cache set: %v", r.id, err)
		}
	}
	return u
}

func (o *Orchestrator) buildLink(ctx context.Context, session ToolSession, plan Plan, method string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.LinkTimeout)
	defer cancel()
	raw, err := session.Call(ctx, o.cfg.LinkTool, map[string]any{
		"query":     plan.Query,
		"databases": plan.Databases,
		"method":    method,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLinkBuild, err)
	}
	u, ok := parseLink(raw)
	if !ok {
		return "", fmt.Errorf("%w: no url in tool result", ErrLinkBuild)
	}
	return u, nil
}

// parseLink accepts {"url": ...}, {"result": ...} or a text block holding the
// URL, either directly or inside structuredContent.
func parseLink(raw json.RawMessage) (string, bool) {
	var reply struct {
		URL               string          `json:"url"`
		Result            json.RawMessage `json:"result"`
		StructuredContent json.RawMessage `json:"structuredContent"`
		Content           []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", false
	}
	if isURL(reply.URL) {
		return reply.URL, true
	}
	for _, nested := range []json.RawMessage{reply.StructuredContent, reply.Result} {
		nested = bytes.TrimSpace(nested)
		if len(nested) == 0 {
			continue
		}
		var s string
		if json.Unmarshal(nested, &s) == nil && isURL(s) {
			return strings.TrimSpace(s), true
		}
		if u, ok := parseLink(nested); ok {
			return u, true
		}
	}
	for _, c := range reply.Content {
		if text := strings.TrimSpace(c.Text); isURL(text) {
			return text, true
		}
	}
	return "", false
}

func isURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func (o *Orchestrator) summarize(r *run, preview []results.Item) (summary string, err error) {
	ctx, done := o.stage(r, stageSummarizing)
	defer func() { done(err) }()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.SummarizeTimeout)
	defer cancel()
	return o.summarizer.Summarize(ctx, r.req.Prompt, preview)
}

func (o *Orchestrator) closeSession(r *run, session ToolSession) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
	defer cancel()
	if err := session.Close(ctx); err != nil {
		o.logger.Printf("%s close tool session: %v", r.id, err)
	}
}
