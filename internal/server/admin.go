package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/konashevich/olexi-host/internal/helpers"
	"github.com/konashevich/olexi-host/internal/ratelimit"
	"github.com/konashevich/olexi-host/internal/runtime"
	"github.com/konashevich/olexi-host/internal/session"
)

// AdminHandler serves operator diagnostics behind an admin-scoped JWT.
type AdminHandler struct {
	Tokens  *session.Manager
	Limiter *ratelimit.Limiter
	History History
	Metrics *runtime.Metrics
	Secret  []byte
}

func (h *AdminHandler) Register(g *echo.Group) {
	g.Use(runtime.EchoAuthMiddleware(h.Secret), runtime.RequireScopes(runtime.ScopeAdmin))
	g.GET("/stats", h.stats)
	g.GET("/usage/:fingerprint", h.usage)
	g.GET("/tokens/:fingerprint", h.tokens)
	g.DELETE("/tokens/:token", h.revoke)
	g.GET("/history", h.history)
}

// Stats
//
//	@Summary		Token and limiter overview
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	AdminStatsResponse
//	@Failure		401	{object}	HTTPError
//	@Failure		403	{object}	HTTPError
//	@Router			/admin/stats [get]
func (h *AdminHandler) stats(c echo.Context) error {
	daily, hourly := h.Limiter.Limits()
	stats := h.Tokens.Stats()
	if h.Metrics != nil {
		h.Metrics.LiveTokens.Set(float64(stats.LiveTokens))
	}
	return c.JSON(http.StatusOK, AdminStatsResponse{
		Tokens:         stats,
		Limits:         LimitsResponse{Daily: daily, Hourly: hourly},
		HistoryEnabled: h.History != nil,
	})
}

func pathFingerprint(c echo.Context) (string, error) {
	fp := c.Param("fingerprint")
	if !helpers.ValidFingerprint(fp) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid fingerprint")
	}
	return fp, nil
}

func (h *AdminHandler) usage(c echo.Context) error {
	fp, err := pathFingerprint(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AdminUsageResponse{Fingerprint: fp, Usage: h.Limiter.Usage(fp)})
}

func (h *AdminHandler) tokens(c echo.Context) error {
	fp, err := pathFingerprint(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AdminTokensResponse{Fingerprint: fp, Tokens: h.Tokens.Live(fp)})
}

func (h *AdminHandler) revoke(c echo.Context) error {
	if !h.Tokens.Revoke(c.Param("token")) {
		return echo.NewHTTPError(http.StatusNotFound, "token not found")
	}
	if h.Metrics != nil {
		h.Metrics.LiveTokens.Set(float64(h.Tokens.Stats().LiveTokens))
	}
	return c.NoContent(http.StatusNoContent)
}

// History
//
//	@Summary		Most recent research sessions
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Maximum rows (default 50)"
//	@Success		200		{array}		store.Session
//	@Failure		404		{object}	HTTPError
//	@Router			/admin/history [get]
func (h *AdminHandler) history(c echo.Context) error {
	if h.History == nil {
		return echo.NewHTTPError(http.StatusNotFound, "history is disabled")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be within 1..500")
		}
		limit = n
	}
	rows, err := h.History.Recent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not load history")
	}
	return c.JSON(http.StatusOK, rows)
}
