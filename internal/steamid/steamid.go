// Package steamid converts between the Steam account formats users
// paste into team rosters: STEAM_X:Y:Z, [U:1:N], profile URLs, and
// plain steam64 ids. Conversion is offline; vanity names that need a
// Steam web API lookup are rejected rather than resolved.
package steamid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Valve's base account number offset for 64-bit ids.
const steam64Base = 76561197960265728

var (
	steam2Re   = regexp.MustCompile(`^STEAM_[0-5]:([01]):(\d+)$`)
	steam3Re   = regexp.MustCompile(`^\[U:1:(\d+)\]$`)
	profilesRe = regexp.MustCompile(`steamcommunity\.com/profiles/(\d+)`)
)

// Steam2To64 converts a STEAM_X:Y:Z id to steam64.
func Steam2To64(steam2 string) (string, error) {
	m := steam2Re.FindStringSubmatch(strings.TrimSpace(steam2))
	if m == nil {
		return "", fmt.Errorf("invalid steam2 id %q", steam2)
	}

	y, _ := strconv.ParseInt(m[1], 10, 64)
	z, _ := strconv.ParseInt(m[2], 10, 64)
	return strconv.FormatInt(steam64Base+z*2+y, 10), nil
}

// Steam3To64 converts a [U:1:N] id to steam64.
func Steam3To64(steam3 string) (string, error) {
	m := steam3Re.FindStringSubmatch(strings.TrimSpace(steam3))
	if m == nil {
		return "", fmt.Errorf("invalid steam3 id %q", steam3)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n == 0 {
		return "", fmt.Errorf("invalid steam3 account number %q", m[1])
	}
	return strconv.FormatInt(steam64Base+n, 10), nil
}

// To64 coerces any supported auth form to a steam64 string. Returns
// false when the input is empty, malformed, or needs a network lookup.
func To64(auth string) (string, bool) {
	auth = strings.TrimSpace(auth)
	if auth == "" {
		return "", false
	}

	switch {
	case strings.Contains(auth, "steamcommunity.com/profiles/"):
		m := profilesRe.FindStringSubmatch(auth)
		if m == nil {
			return "", false
		}
		return validate64(m[1])

	case strings.HasPrefix(auth, "STEAM_"):
		id, err := Steam2To64(auth)
		if err != nil {
			return "", false
		}
		return id, true

	case strings.HasPrefix(auth, "1:0:") || strings.HasPrefix(auth, "1:1:"):
		id, err := Steam2To64("STEAM_" + auth)
		if err != nil {
			return "", false
		}
		return id, true

	case strings.HasPrefix(auth, "[U:1:"):
		id, err := Steam3To64(auth)
		if err != nil {
			return "", false
		}
		return id, true

	case strings.HasPrefix(auth, "7656119") && !strings.Contains(auth, "steam"):
		return validate64(auth)

	default:
		// Vanity URLs and bare names would need a Steam API call.
		return "", false
	}
}

// IsValid reports whether auth coerces to a steam64 id.
func IsValid(auth string) bool {
	_, ok := To64(auth)
	return ok
}

func validate64(s string) (string, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < steam64Base {
		return "", false
	}
	return s, true
}
