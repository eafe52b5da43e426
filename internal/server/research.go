package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/konashevich/olexi-host/internal/helpers"
	"github.com/konashevich/olexi-host/internal/ratelimit"
	"github.com/konashevich/olexi-host/internal/research"
	"github.com/konashevich/olexi-host/internal/runtime"
	"github.com/konashevich/olexi-host/internal/session"
	"github.com/konashevich/olexi-host/internal/store"
)

const maxPromptChars = 2000

// History persists finished research sessions.
type History interface {
	Record(ctx context.Context, s store.Session) error
	Recent(ctx context.Context, limit int) ([]store.Session, error)
}

type ResearchHandler struct {
	Tokens        *session.Manager
	Limiter       *ratelimit.Limiter
	Orch          *research.Orchestrator
	History       History
	Metrics       *runtime.Metrics
	StreamTimeout time.Duration
	Logger        *log.Logger
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/research", h.research)
}

func (r ResearchRequest) validate(defaultResults, defaultDatabases int) (research.Request, error) {
	prompt := strings.TrimSpace(r.Prompt)
	if prompt == "" {
		return research.Request{}, errors.New("prompt is required")
	}
	if utf8.RuneCountInString(prompt) > maxPromptChars {
		return research.Request{}, fmt.Errorf("prompt must be at most %d characters", maxPromptChars)
	}
	out := research.Request{
		Prompt:       prompt,
		MaxResults:   defaultResults,
		MaxDatabases: defaultDatabases,
		YearFrom:     r.YearFrom,
		YearTo:       r.YearTo,
	}
	if r.MaxResults != nil {
		if *r.MaxResults < 1 || *r.MaxResults > 50 {
			return research.Request{}, errors.New("maxResults must be within 1..50")
		}
		out.MaxResults = *r.MaxResults
	}
	if r.MaxDatabases != nil {
		if *r.MaxDatabases < 1 || *r.MaxDatabases > 10 {
			return research.Request{}, errors.New("maxDatabases must be within 1..10")
		}
		out.MaxDatabases = *r.MaxDatabases
	}
	if r.YearFrom != nil && r.YearTo != nil && *r.YearFrom > *r.YearTo {
		return research.Request{}, errors.New("yearFrom must not be after yearTo")
	}
	return out, nil
}

// Research
//
//	@Summary		Run a research request
//	@Description	Streams progress, results_preview, answer and error events over SSE.
//	@Tags			research
//	@Accept			json
//	@Produce		text/event-stream
//	@Param			payload	body	ResearchRequest	true	"Research request"
//	@Success		200
//	@Failure		400	{object}	HTTPError
//	@Failure		401	{object}	HTTPError
//	@Failure		429	{object}	HTTPError
//	@Router			/session/research [post]
func (h *ResearchHandler) research(c echo.Context) error {
	fp, err := fingerprintFrom(c, "")
	if err != nil {
		return err
	}
	token := strings.TrimSpace(c.Request().Header.Get(HeaderSessionToken))
	if !h.Tokens.Validate(token, fp) {
		return echo.NewHTTPError(http.StatusUnauthorized, invalidTokenDetail)
	}
	if err := h.Limiter.Admit(fp); err != nil {
		var le *ratelimit.LimitError
		if errors.As(err, &le) {
			if h.Metrics != nil {
				h.Metrics.RateLimited.WithLabelValues(string(le.Kind)).Inc()
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, le.Error())
		}
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	}

	var body ResearchRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	maxResults, maxDatabases := h.Orch.Defaults()
	req, err := body.validate(maxResults, maxDatabases)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sink, err := openStream(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if h.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.StreamTimeout)
		defer cancel()
	}
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	out, err := h.Orch.Run(ctx, requestID, req, sink)
	if err != nil && !errors.Is(err, research.ErrClientGone) && !errors.Is(err, context.Canceled) {
		h.Logger.Printf("request %s ended with %s: %v", requestID, out.Status, err)
	}
	if h.Metrics != nil {
		h.Metrics.ResearchRequests.WithLabelValues(out.Status).Inc()
	}
	h.record(ctx, fp, out)
	return nil
}

func (h *ResearchHandler) record(ctx context.Context, fingerprint string, out research.Outcome) {
	if h.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rec := store.Session{
		FingerprintDigest: helpers.FingerprintDigest(fingerprint),
		Prompt:            helpers.PlainText(out.Prompt),
		Query:             out.Plan.Query,
		Databases:         out.Plan.Databases,
		Method:            out.Method,
		TotalUnfiltered:   out.TotalUnfiltered,
		TotalFiltered:     out.TotalFiltered,
		ShareURL:          out.ShareURL,
		Status:            out.Status,
		ErrorCode:         out.ErrorCode,
		StartedAt:         out.StartedAt,
		FinishedAt:        out.FinishedAt,
	}
	if err := h.History.Record(ctx, rec); err != nil {
		h.Logger.Printf("record history for %s: %v", out.RequestID, err)
	}
}
