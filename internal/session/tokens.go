// Package session issues short-lived opaque tokens bound to a client
// fingerprint. Nothing here survives a restart; clients simply request a new
// token.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	DefaultLifetime          = 24 * time.Hour
	DefaultMaxPerFingerprint = 3

	tokenBytes = 32
)

// Token is the manager's record for one issued token.
type Token struct {
	Value        string    `json:"-"`
	Fingerprint  string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
	RequestCount int       `json:"request_count"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Stats aggregates live tokens after a full expiry sweep.
type Stats struct {
	LiveTokens              int           `json:"total_active_tokens"`
	Fingerprints            int           `json:"total_fingerprints"`
	TotalRequests           int           `json:"total_requests_served"`
	AverageRequestsPerToken float64       `json:"average_requests_per_token"`
	Lifetime                time.Duration `json:"-"`
	LifetimeHours           float64       `json:"token_lifetime_hours"`
}

// Manager owns every token. All methods take the same mutex, which makes
// check-then-mutate sequences (validation, eviction) atomic.
type Manager struct {
	lifetime time.Duration
	maxPer   int
	now      func() time.Time
	random   func([]byte) (int, error)

	mu     sync.Mutex
	tokens map[string]*Token
	// byFingerprint keeps issue order; eviction still compares CreatedAt.
	byFingerprint map[string][]string
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager. Non-positive values fall back to the defaults.
func NewManager(lifetime time.Duration, maxPerFingerprint int, opts ...Option) *Manager {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if maxPerFingerprint <= 0 {
		maxPerFingerprint = DefaultMaxPerFingerprint
	}
	m := &Manager{
		lifetime:      lifetime,
		maxPer:        maxPerFingerprint,
		now:           time.Now,
		random:        rand.Read,
		tokens:        make(map[string]*Token),
		byFingerprint: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lifetime returns the configured token lifetime.
func (m *Manager) Lifetime() time.Duration { return m.lifetime }

// Issue creates a new token for fingerprint. When the fingerprint already
// holds the maximum number of live tokens the oldest ones are evicted. A
// failed issue leaves the existing tokens untouched.
func (m *Manager) Issue(fingerprint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	value, err := m.newValueLocked()
	if err != nil {
		return "", err
	}
	for len(m.byFingerprint[fingerprint]) >= m.maxPer {
		m.removeLocked(m.oldestLocked(fingerprint))
	}
	m.tokens[value] = &Token{
		Value:       value,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(m.lifetime),
	}
	m.byFingerprint[fingerprint] = append(m.byFingerprint[fingerprint], value)
	return value, nil
}

// Validate reports whether token is live and bound to fingerprint. A
// successful validation records the use (LastUsedAt, RequestCount).
func (m *Manager) Validate(token, fingerprint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	t, ok := m.tokens[token]
	if !ok || t.Fingerprint != fingerprint {
		return false
	}
	if m.expired(t, now) {
		m.removeLocked(token)
		return false
	}
	t.LastUsedAt = now
	t.RequestCount++
	return true
}

// Info returns a copy of the token's record when it is live.
func (m *Manager) Info(token string) (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(m.now())
	t, ok := m.tokens[token]
	if !ok {
		return Token{}, false
	}
	return *t, true
}

// Revoke removes token. It reports false when the token was not present.
func (m *Manager) Revoke(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[token]; !ok {
		return false
	}
	m.removeLocked(token)
	return true
}

// Live lists the fingerprint's unexpired tokens in issue order.
func (m *Manager) Live(fingerprint string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(m.now())
	out := make([]string, len(m.byFingerprint[fingerprint]))
	copy(out, m.byFingerprint[fingerprint])
	return out
}

// Stats sweeps expired tokens and aggregates what remains.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(m.now())
	total := 0
	for _, t := range m.tokens {
		total += t.RequestCount
	}
	s := Stats{
		LiveTokens:    len(m.tokens),
		Fingerprints:  len(m.byFingerprint),
		TotalRequests: total,
		Lifetime:      m.lifetime,
		LifetimeHours: m.lifetime.Hours(),
	}
	if s.LiveTokens > 0 {
		avg := float64(total) / float64(s.LiveTokens)
		s.AverageRequestsPerToken = math.Round(avg*100) / 100
	}
	return s
}

// expired treats the token as dead from ExpiresAt onward.
func (m *Manager) expired(t *Token, now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (m *Manager) pruneLocked(now time.Time) {
	for value, t := range m.tokens {
		if m.expired(t, now) {
			m.removeLocked(value)
		}
	}
}

// oldestLocked returns the fingerprint's token with the smallest CreatedAt.
// Ties go to the earlier issued token.
func (m *Manager) oldestLocked(fingerprint string) string {
	var oldest string
	var oldestAt time.Time
	for _, value := range m.byFingerprint[fingerprint] {
		t := m.tokens[value]
		if oldest == "" || t.CreatedAt.Before(oldestAt) {
			oldest, oldestAt = value, t.CreatedAt
		}
	}
	return oldest
}

func (m *Manager) removeLocked(value string) {
	t, ok := m.tokens[value]
	if !ok {
		return
	}
	delete(m.tokens, value)
	list := m.byFingerprint[t.Fingerprint]
	for i, v := range list {
		if v == value {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.byFingerprint, t.Fingerprint)
		return
	}
	m.byFingerprint[t.Fingerprint] = list
}

// newValueLocked draws a URL-safe random value that has never been handed out
// by this manager while it is still held.
func (m *Manager) newValueLocked() (string, error) {
	buf := make([]byte, tokenBytes)
	for {
		if _, err := m.random(buf); err != nil {
			return "", fmt.Errorf("session: generate token: %w", err)
		}
		value := base64.RawURLEncoding.EncodeToString(buf)
		if _, taken := m.tokens[value]; !taken {
			return value, nil
		}
	}
}
