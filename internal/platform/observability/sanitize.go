package observability

import (
	"strings"
	"unicode"
)

// Header and path values are shopper controlled; they are clipped and stripped of control
// characters before they reach a log line or span attribute.
const (
	maxRouteLen   = 180
	maxMethodLen  = 10
	maxSessionLen = 64
	maxAddrLen    = 64
)

func clip(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

func logRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clip(route, maxRouteLen)
}

func logMethod(method string) string { return clip(method, maxMethodLen) }

func logSession(id string) string { return clip(id, maxSessionLen) }
