package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidFingerprint(t *testing.T) {
	assert.True(t, ValidFingerprint("0123456789abcdef0123456789abcdef"))
	assert.False(t, ValidFingerprint("0123456789ABCDEF0123456789ABCDEF"))
	assert.False(t, ValidFingerprint("short"))
	assert.False(t, ValidFingerprint(""))
}

func TestDegenerateFingerprint(t *testing.T) {
	assert.True(t, DegenerateFingerprint(strings.Repeat("0", 32)))
	assert.True(t, DegenerateFingerprint(strings.Repeat("ab", 16)))
	assert.False(t, DegenerateFingerprint("0123456789abcdef0123456789abcdef"))
}

func TestFingerprintDigestStable(t *testing.T) {
	a := FingerprintDigest("0123456789abcdef0123456789abcdef")
	b := FingerprintDigest("0123456789abcdef0123456789abcdef")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, FingerprintDigest("fedcba9876543210fedcba9876543210"))
}
