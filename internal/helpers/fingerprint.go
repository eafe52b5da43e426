package helpers

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var fingerprintPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// ValidFingerprint reports whether fp looks like an installation fingerprint
// produced by the browser extension (32 lowercase hex characters).
func ValidFingerprint(fp string) bool {
	return fingerprintPattern.MatchString(fp)
}

// DegenerateFingerprint flags fingerprints that are well-formed but obviously
// synthetic: all zeros or built from fewer than four distinct characters.
func DegenerateFingerprint(fp string) bool {
	if fp == strings.Repeat("0", 32) {
		return true
	}
	seen := make(map[rune]struct{}, 4)
	for _, r := range fp {
		seen[r] = struct{}{}
		if len(seen) >= 4 {
			return false
		}
	}
	return true
}

// FingerprintDigest returns a short, stable BLAKE2b digest of fp for logs and
// history rows. Raw fingerprints never leave the process.
func FingerprintDigest(fp string) string {
	sum := blake2b.Sum256([]byte(fp))
	return hex.EncodeToString(sum[:8])
}
