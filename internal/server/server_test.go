package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/konashevich/olexi-host/config"
	"github.com/konashevich/olexi-host/internal/helpers"
	"github.com/konashevich/olexi-host/internal/ratelimit"
	"github.com/konashevich/olexi-host/internal/research"
	"github.com/konashevich/olexi-host/internal/results"
	"github.com/konashevich/olexi-host/internal/runtime"
	"github.com/konashevich/olexi-host/internal/session"
	"github.com/konashevich/olexi-host/internal/store"
)

const (
	testFP      = "0123456789abcdef0123456789abcdef"
	otherFP     = "fedcba9876543210fedcba9876543210"
	adminSecret = "admin-secret"
)

const searchReply = `{"result":[
	{"title":"Donoghue v Stevenson [1932] UKHL 100","url":"https://example.test/1"},
	{"title":"Sullivan v Moody [2001] HCA 59","url":"https://example.test/2"}
]}`

type stubPlanner struct{}

func (stubPlanner) Plan(context.Context, string, []research.Database, int) (research.Plan, error) {
	return research.Plan{Query: "negligence", Databases: []string{"au/cases/cth/HCA"}}, nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(context.Context, string, []results.Item) (string, error) {
	return "## Summary", nil
}

type stubSession struct{}

func (stubSession) Call(_ context.Context, tool string, _ map[string]any, onProgress func(research.Progress)) (json.RawMessage, error) {
	if tool != "search_austlii" {
		return json.RawMessage(`{"url":"https://www.austlii.edu.au/share"}`), nil
	}
	if onProgress != nil {
		onProgress(research.Progress{Progress: 1, Total: 2, Message: "page 1"})
	}
	return json.RawMessage(searchReply), nil
}

func (stubSession) Close(context.Context) error { return nil }

type stubTransport struct{}

func (stubTransport) Open(context.Context) (research.ToolSession, error) { return stubSession{}, nil }

type memHistory struct {
	mu   sync.Mutex
	rows []store.Session
	err  error
}

func (m *memHistory) Record(_ context.Context, s store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, s)
	return nil
}

func (m *memHistory) Recent(_ context.Context, limit int) ([]store.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows, nil
}

type fixture struct {
	e       *echo.Echo
	deps    Deps
	history *memHistory
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newFixture(t *testing.T, mutate func(*config.Config, *Deps)) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.StreamTimeout = 5 * time.Second
	history := &memHistory{}
	deps := Deps{
		Tokens:      session.NewManager(time.Hour, 3),
		Limiter:     ratelimit.New(50, 10),
		Orch:        research.NewOrchestrator(research.Config{}, stubPlanner{}, stubSummarizer{}, stubTransport{}, quietLogger()),
		History:     history,
		Metrics:     runtime.NewMetrics(),
		AdminSecret: []byte(adminSecret),
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	return &fixture{e: New(cfg, deps), deps: deps, history: history}
}

// browserRequest builds a request carrying the headers a real browser sends.
func browserRequest(method, target, body string) *http.Request {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-AU,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) issue(t *testing.T, fp string) string {
	t.Helper()
	req := browserRequest(http.MethodPost, "/session/token", "")
	req.Header.Set(HeaderFingerprint, fp)
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return resp.Token
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body HTTPError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	f := newFixture(t, nil)
	f.issue(t, testFP)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "olexi_tokens_issued_total 1") {
		t.Fatalf("issued counter missing from metrics output")
	}
}

func TestDocsServeOpenAPI(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/session/research") {
		t.Fatalf("unexpected docs response %d", rec.Code)
	}
}

func TestIssueToken(t *testing.T) {
	f := newFixture(t, nil)
	token := f.issue(t, testFP)
	if token == "" {
		t.Fatalf("expected a token")
	}
	if !f.deps.Tokens.Validate(token, testFP) {
		t.Fatalf("issued token does not validate")
	}
	if got := testutil.ToFloat64(f.deps.Metrics.LiveTokens); got != 1 {
		t.Fatalf("expected live tokens gauge 1, got %v", got)
	}
}

func TestIssueTokenFromBody(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(browserRequest(http.MethodPost, "/session/token", `{"fingerprint":"`+testFP+`"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ExpiresIn != 3600 || resp.ExpiresAt.IsZero() {
		t.Fatalf("unexpected expiry %+v", resp)
	}
}

func TestIssueTokenRejectsBadFingerprints(t *testing.T) {
	cases := []struct {
		name string
		fp   string
		code int
	}{
		{"missing", "", http.StatusBadRequest},
		{"uppercase", strings.ToUpper(testFP), http.StatusBadRequest},
		{"short", "abc123", http.StatusBadRequest},
		{"zeros", strings.Repeat("0", 32), http.StatusForbidden},
		{"few distinct", strings.Repeat("ab", 16), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := browserRequest(http.MethodPost, "/session/token", "")
			if tc.fp != "" {
				req.Header.Set(HeaderFingerprint, tc.fp)
			}
			rec := f.do(req)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestGuardRejectsAutomation(t *testing.T) {
	f := newFixture(t, nil)

	req := browserRequest(http.MethodPost, "/session/token", "")
	req.Header.Set(HeaderFingerprint, testFP)
	req.Header.Set("User-Agent", "python-requests/2.31")
	if rec := f.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("automation agent: expected 403, got %d", rec.Code)
	}

	req = browserRequest(http.MethodPost, "/session/token", "")
	req.Header.Set(HeaderFingerprint, testFP)
	req.Header.Del("Accept-Language")
	if rec := f.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("missing accept-language: expected 403, got %d", rec.Code)
	}
}

func TestGuardRequiresExtensionOrigin(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config, _ *Deps) { cfg.Server.RequireExtensionOrigin = true })

	req := browserRequest(http.MethodPost, "/session/token", "")
	req.Header.Set(HeaderFingerprint, testFP)
	req.Header.Set(echo.HeaderOrigin, "https://evil.test")
	if rec := f.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign origin: expected 403, got %d", rec.Code)
	}

	req = browserRequest(http.MethodPost, "/session/token", "")
	req.Header.Set(HeaderFingerprint, testFP)
	req.Header.Set(echo.HeaderOrigin, "chrome-extension://abcdefghijklmnop")
	if rec := f.do(req); rec.Code != http.StatusOK {
		t.Fatalf("extension origin: expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflightAllowsExtensionHeaders(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/session/research", nil)
	req.Header.Set(echo.HeaderOrigin, "chrome-extension://abcdefghijklmnop")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, "X-Session-Token, X-Extension-Fingerprint")
	rec := f.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	allowed := rec.Header().Get(echo.HeaderAccessControlAllowHeaders)
	if !strings.Contains(allowed, HeaderSessionToken) || !strings.Contains(allowed, HeaderFingerprint) {
		t.Fatalf("extension headers not allowed: %q", allowed)
	}
}

func TestTokenInfo(t *testing.T) {
	f := newFixture(t, nil)
	token := f.issue(t, testFP)

	req := browserRequest(http.MethodGet, "/session/token/info", "")
	req.Header.Set(HeaderFingerprint, testFP)
	req.Header.Set(HeaderSessionToken, token)
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var info TokenInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !info.Valid || info.ExpiresAt.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}

	req = browserRequest(http.MethodGet, "/session/token/info", "")
	req.Header.Set(HeaderFingerprint, otherFP)
	req.Header.Set(HeaderSessionToken, token)
	rec = f.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign fingerprint: expected 401, got %d", rec.Code)
	}
	if !strings.Contains(detail(t, rec), "token") {
		t.Fatalf("detail should mention the token")
	}
}

func TestRevokeOwnToken(t *testing.T) {
	f := newFixture(t, nil)
	token := f.issue(t, testFP)

	req := browserRequest(http.MethodDelete, "/session/token", "")
	req.Header.Set(HeaderFingerprint, testFP)
	req.Header.Set(HeaderSessionToken, token)
	if rec := f.do(req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if f.deps.Tokens.Validate(token, testFP) {
		t.Fatalf("revoked token still validates")
	}
}

func TestSessionUsage(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.deps.Limiter.Admit(testFP); err != nil {
		t.Fatalf("admit: %v", err)
	}
	req := browserRequest(http.MethodGet, "/session/usage", "")
	req.Header.Set(HeaderFingerprint, testFP)
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var usage ratelimit.Usage
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if usage.DailyCount != 1 || usage.HourlyRemaining != 9 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(body string) []sseEvent {
	var out []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.name != "" {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fixture) research(token, fp, body string) *httptest.ResponseRecorder {
	req := browserRequest(http.MethodPost, "/session/research", body)
	req.Header.Set(HeaderFingerprint, fp)
	req.Header.Set(HeaderSessionToken, token)
	return f.do(req)
}

func TestResearchStreamsEvents(t *testing.T) {
	f := newFixture(t, nil)
	token := f.issue(t, testFP)

	rec := f.research(token, testFP, `{"prompt":"negligence duty of care","maxResults":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := parseSSE(rec.Body.String())
	if len(events) < 3 {
		t.Fatalf("expected several events, got %d", len(events))
	}
	if events[0].name != research.EventProgress {
		t.Fatalf("first event should be progress, got %s", events[0].name)
	}
	last := events[len(events)-1]
	if last.name != research.EventAnswer {
		t.Fatalf("last event should be answer, got %s: %s", last.name, last.data)
	}
	var answer research.AnswerData
	if err := json.Unmarshal([]byte(last.data), &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Markdown != "## Summary" || answer.URL != "https://www.austlii.edu.au/share" {
		t.Fatalf("unexpected answer %+v", answer)
	}
	previews := 0
	for _, ev := range events {
		if ev.name == research.EventResultsPreview {
			previews++
		}
	}
	if previews != 1 {
		t.Fatalf("expected one results_preview, got %d", previews)
	}

	if got := testutil.ToFloat64(f.deps.Metrics.ResearchRequests.WithLabelValues(research.StatusAnswered)); got != 1 {
		t.Fatalf("expected one answered request, got %v", got)
	}
	if len(f.history.rows) != 1 {
		t.Fatalf("expected one history row, got %d", len(f.history.rows))
	}
	row := f.history.rows[0]
	if row.FingerprintDigest != helpers.FingerprintDigest(testFP) || row.Status != research.StatusAnswered {
		t.Fatalf("unexpected history row %+v", row)
	}
	if row.Query != "negligence" || row.TotalUnfiltered != 2 {
		t.Fatalf("unexpected history row %+v", row)
	}
}

func TestResearchRejectsInvalidToken(t *testing.T) {
	f := newFixture(t, nil)
	token := f.issue(t, testFP)

	rec := f.research("bogus", testFP, `{"prompt":"negligence"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if detail(t, rec) != invalidTokenDetail {
		t.Fatalf("unexpected detail %q", detail(t, rec))
	}

	rec = f.research(token, otherFP, `{"prompt":"negligence"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign fingerprint: expected 401, got %d", rec.Code)
	}
}

func TestResearchRateLimited(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, d *Deps) { d.Limiter = ratelimit.New(50, 1) })
	token := f.issue(t, testFP)

	if rec := f.research(token, testFP, `{"prompt":"negligence"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	rec := f.research(token, testFP, `{"prompt":"negligence"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if got := detail(t, rec); got != "Hourly limit exceeded. Max 1 requests per hour." {
		t.Fatalf("unexpected detail %q", got)
	}
	if got := testutil.ToFloat64(f.deps.Metrics.RateLimited.WithLabelValues("hourly")); got != 1 {
		t.Fatalf("expected one hourly rejection, got %v", got)
	}
}

func TestResearchValidatesBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty prompt", `{"prompt":"   "}`},
		{"long prompt", `{"prompt":"` + strings.Repeat("a", maxPromptChars+1) + `"}`},
		{"zero results", `{"prompt":"x","maxResults":0}`},
		{"too many results", `{"prompt":"x","maxResults":51}`},
		{"too many databases", `{"prompt":"x","maxDatabases":11}`},
		{"inverted years", `{"prompt":"x","yearFrom":2020,"yearTo":2010}`},
		{"malformed", `{"prompt":`},
	}
	f := newFixture(t, nil)
	token := f.issue(t, testFP)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := f.research(token, testFP, tc.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestResearchRequestDefaults(t *testing.T) {
	req, err := ResearchRequest{Prompt: "  native title  "}.validate(25, 5)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if req.Prompt != "native title" || req.MaxResults != 25 || req.MaxDatabases != 5 {
		t.Fatalf("unexpected request %+v", req)
	}
	year := 2010
	req, err = ResearchRequest{Prompt: "x", YearFrom: &year, YearTo: &year}.validate(25, 5)
	if err != nil || *req.YearFrom != 2010 {
		t.Fatalf("equal years should be accepted: %v", err)
	}
}

func adminRequest(t *testing.T, method, target string, scopes ...string) *http.Request {
	t.Helper()
	tok, err := runtime.SignJWT("ops", []byte(adminSecret), time.Hour, scopes...)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	return req
}

func TestAdminRequiresScopedJWT(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/stats", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", rec.Code)
	}
	if rec := f.do(adminRequest(t, http.MethodGet, "/admin/stats")); rec.Code != http.StatusForbidden {
		t.Fatalf("no scope: expected 403, got %d", rec.Code)
	}
	if rec := f.do(adminRequest(t, http.MethodGet, "/admin/stats", runtime.ScopeAdmin)); rec.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rec.Code)
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, d *Deps) { d.AdminSecret = nil })
	if rec := f.do(adminRequest(t, http.MethodGet, "/admin/stats", runtime.ScopeAdmin)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminStats(t *testing.T) {
	f := newFixture(t, nil)
	f.issue(t, testFP)
	f.issue(t, otherFP)

	rec := f.do(adminRequest(t, http.MethodGet, "/admin/stats", runtime.ScopeAdmin))
	var stats AdminStatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Tokens.LiveTokens != 2 || stats.Tokens.Fingerprints != 2 {
		t.Fatalf("unexpected token stats %+v", stats.Tokens)
	}
	if stats.Limits != (LimitsResponse{Daily: 50, Hourly: 10}) || !stats.HistoryEnabled {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAdminTokensAndRevoke(t *testing.T) {
	f := newFixture(t, nil)
	token := f.issue(t, testFP)

	rec := f.do(adminRequest(t, http.MethodGet, "/admin/tokens/"+testFP, runtime.ScopeAdmin))
	var listed AdminTokensResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Tokens) != 1 || listed.Tokens[0] != token {
		t.Fatalf("unexpected tokens %+v", listed)
	}

	if rec := f.do(adminRequest(t, http.MethodDelete, "/admin/tokens/"+token, runtime.ScopeAdmin)); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: expected 204, got %d", rec.Code)
	}
	if rec := f.do(adminRequest(t, http.MethodDelete, "/admin/tokens/"+token, runtime.ScopeAdmin)); rec.Code != http.StatusNotFound {
		t.Fatalf("second revoke: expected 404, got %d", rec.Code)
	}
	if rec := f.do(adminRequest(t, http.MethodGet, "/admin/tokens/nothex", runtime.ScopeAdmin)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad fingerprint: expected 400, got %d", rec.Code)
	}
}

func TestAdminUsage(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.deps.Limiter.Admit(testFP)
	rec := f.do(adminRequest(t, http.MethodGet, "/admin/usage/"+testFP, runtime.ScopeAdmin))
	var resp AdminUsageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Usage.HourlyCount != 1 {
		t.Fatalf("unexpected usage %+v", resp)
	}
}

func TestAdminHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.history.rows = []store.Session{{Query: "negligence", Status: research.StatusAnswered}}

	rec := f.do(adminRequest(t, http.MethodGet, "/admin/history?limit=10", runtime.ScopeAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []store.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Query != "negligence" {
		t.Fatalf("unexpected rows %+v", rows)
	}

	if rec := f.do(adminRequest(t, http.MethodGet, "/admin/history?limit=0", runtime.ScopeAdmin)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rec.Code)
	}

	f.history.err = errors.New("db down")
	if rec := f.do(adminRequest(t, http.MethodGet, "/admin/history", runtime.ScopeAdmin)); rec.Code != http.StatusInternalServerError {
		t.Fatalf("store failure: expected 500, got %d", rec.Code)
	}
}

func TestAdminHistoryDisabled(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, d *Deps) { d.History = nil })
	if rec := f.do(adminRequest(t, http.MethodGet, "/admin/history", runtime.ScopeAdmin)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
