package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/konashevich/olexi-host/internal/ratelimit"
	"github.com/konashevich/olexi-host/internal/runtime"
	"github.com/konashevich/olexi-host/internal/session"
)

const invalidTokenDetail = "invalid or expired session token"

type SessionHandler struct {
	Tokens  *session.Manager
	Limiter *ratelimit.Limiter
	Metrics *runtime.Metrics
}

func (h *SessionHandler) Register(g *echo.Group) {
	g.POST("/token", h.issue)
	g.GET("/token/info", h.info)
	g.DELETE("/token", h.revoke)
	g.GET("/usage", h.usage)
}

// Issue token
//
//	@Summary		Issue a session token
//	@Description	Issues a short-lived token bound to the extension fingerprint. The oldest live token is evicted when the per-fingerprint cap is reached.
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		TokenRequest	false	"Fingerprint when the header is absent"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		403		{object}	HTTPError
//	@Router			/session/token [post]
func (h *SessionHandler) issue(c echo.Context) error {
	var body TokenRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	fp, err := fingerprintFrom(c, body.Fingerprint)
	if err != nil {
		return err
	}
	token, err := h.Tokens.Issue(fp)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	if h.Metrics != nil {
		h.Metrics.TokensIssued.Inc()
		h.Metrics.LiveTokens.Set(float64(h.Tokens.Stats().LiveTokens))
	}
	lifetime := h.Tokens.Lifetime()
	resp := TokenResponse{Token: token, ExpiresIn: int(lifetime / time.Second)}
	if t, ok := h.Tokens.Info(token); ok {
		resp.ExpiresAt = t.ExpiresAt
	}
	return c.JSON(http.StatusOK, resp)
}

// owned resolves the request's token and checks it belongs to the caller.
func (h *SessionHandler) owned(c echo.Context) (string, session.Token, error) {
	fp, err := fingerprintFrom(c, "")
	if err != nil {
		return "", session.Token{}, err
	}
	value := strings.TrimSpace(c.Request().Header.Get(HeaderSessionToken))
	if value == "" {
		return "", session.Token{}, echo.NewHTTPError(http.StatusUnauthorized, invalidTokenDetail)
	}
	t, ok := h.Tokens.Info(value)
	if !ok || t.Fingerprint != fp {
		return "", session.Token{}, echo.NewHTTPError(http.StatusUnauthorized, invalidTokenDetail)
	}
	return value, t, nil
}

// Token info
//
//	@Summary		Inspect the current session token
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	TokenInfoResponse
//	@Failure		401	{object}	HTTPError
//	@Router			/session/token/info [get]
func (h *SessionHandler) info(c echo.Context) error {
	_, t, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenInfoResponse{
		Valid:        true,
		CreatedAt:    t.CreatedAt,
		LastUsedAt:   t.LastUsedAt,
		ExpiresAt:    t.ExpiresAt,
		RequestCount: t.RequestCount,
	})
}

func (h *SessionHandler) revoke(c echo.Context) error {
	value, _, err := h.owned(c)
	if err != nil {
		return err
	}
	h.Tokens.Revoke(value)
	if h.Metrics != nil {
		h.Metrics.LiveTokens.Set(float64(h.Tokens.Stats().LiveTokens))
	}
	return c.NoContent(http.StatusNoContent)
}

// Usage
//
//	@Summary		Rate limit usage for the calling fingerprint
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	ratelimit.Usage
//	@Failure		400	{object}	HTTPError
//	@Router			/session/usage [get]
func (h *SessionHandler) usage(c echo.Context) error {
	fp, err := fingerprintFrom(c, "")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.Limiter.Usage(fp))
}
