package server

import (
	"time"

	"github.com/konashevich/olexi-host/internal/ratelimit"
	"github.com/konashevich/olexi-host/internal/session"
)

// HTTPError is the error envelope returned by the server.
type HTTPError struct {
	Detail string `json:"detail"`
}

// TokenRequest carries the fingerprint when the header is absent.
type TokenRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

type TokenInfoResponse struct {
	Valid        bool      `json:"valid"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RequestCount int       `json:"request_count"`
}

// ResearchRequest is the body of POST /session/research. Optional numbers
// are pointers so an explicit zero can be rejected.
type ResearchRequest struct {
	Prompt       string `json:"prompt"`
	MaxResults   *int   `json:"maxResults,omitempty"`
	MaxDatabases *int   `json:"maxDatabases,omitempty"`
	YearFrom     *int   `json:"yearFrom,omitempty"`
	YearTo       *int   `json:"yearTo,omitempty"`
}

type LimitsResponse struct {
	Daily  int `json:"daily"`
	Hourly int `json:"hourly"`
}

type AdminStatsResponse struct {
	Tokens         session.Stats  `json:"tokens"`
	Limits         LimitsResponse `json:"limits"`
	HistoryEnabled bool           `json:"history_enabled"`
}

type AdminUsageResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Usage       ratelimit.Usage `json:"usage"`
}

type AdminTokensResponse struct {
	Fingerprint string   `json:"fingerprint"`
	Tokens      []string `json:"tokens"`
}
