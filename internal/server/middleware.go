package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/konashevich/olexi-host/internal/helpers"
)

// Headers sent by the browser extension.
const (
	HeaderFingerprint  = "X-Extension-Fingerprint"
	HeaderSessionToken = "X-Session-Token"
	HeaderExtensionID  = "X-Extension-Id"
)

const extensionOriginPrefix = "chrome-extension://"

var automationAgents = []string{
	"curl", "wget", "python", "bot", "crawler", "spider",
	"automated", "selenium", "phantomjs", "headless",
}

// suspicious flags automation user agents and requests missing headers every
// browser sends.
func suspicious(r *http.Request) bool {
	ua := strings.ToLower(r.UserAgent())
	for _, a := range automationAgents {
		if strings.Contains(ua, a) {
			return true
		}
	}
	return r.Header.Get("Accept-Language") == "" || r.Header.Get("Accept-Encoding") == ""
}

// extensionGuard rejects requests that do not look like they come from the
// extension running in a browser.
func extensionGuard(requireOrigin bool, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if requireOrigin && !strings.HasPrefix(req.Header.Get(echo.HeaderOrigin), extensionOriginPrefix) {
				logger.Printf("rejected origin %q from %s", req.Header.Get(echo.HeaderOrigin), c.RealIP())
				return echo.NewHTTPError(http.StatusForbidden, "requests must come from the Olexi extension")
			}
			if suspicious(req) {
				logger.Printf("rejected suspicious client from %s", c.RealIP())
				return echo.NewHTTPError(http.StatusForbidden, "request rejected")
			}
			return next(c)
		}
	}
}

// fingerprintFrom reads the fingerprint header, falling back to fallback
// when the header is absent.
func fingerprintFrom(c echo.Context, fallback string) (string, error) {
	fp := strings.TrimSpace(c.Request().Header.Get(HeaderFingerprint))
	if fp == "" {
		fp = strings.TrimSpace(fallback)
	}
	if !helpers.ValidFingerprint(fp) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid extension fingerprint")
	}
	if helpers.DegenerateFingerprint(fp) {
		return "", echo.NewHTTPError(http.StatusForbidden, "request rejected")
	}
	return fp, nil
}
