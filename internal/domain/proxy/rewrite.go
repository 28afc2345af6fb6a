package proxy

import (
	"fmt"
	"net/url"
	"strings"
)

// proxyPathPrefix is the route every rewritten URL points back at.
const proxyPathPrefix = "/proxy/"

// skipSchemes are URL schemes left untouched by rewriting.
var skipSchemes = []string{"data:", "javascript:", "mailto:", "tel:"}

// shouldSkipRewrite reports whether raw must pass through unrewritten:
// non-navigable schemes and URLs already pointing at the proxy.
func shouldSkipRewrite(raw string) bool {
	lower := strings.ToLower(raw)
	for _, scheme := range skipSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return strings.Contains(raw, proxyPathPrefix)
}

// Rewrite maps a URL found in page content to the proxy route for
// sessionID, resolving it against pageOrigin first. URLs with
// non-navigable schemes and already-proxied URLs come back unchanged.
func Rewrite(raw string, pageOrigin *url.URL, sessionID string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || shouldSkipRewrite(trimmed) {
		return raw
	}

	absolute := absolutize(trimmed, pageOrigin)
	if absolute == "" {
		return raw
	}
	return proxyPathPrefix + sessionID + "/" + encodeTarget(absolute)
}

// absolutize resolves raw to an absolute URL string, or "" when it
// cannot be made navigable.
func absolutize(raw string, origin *url.URL) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return raw
	case strings.HasPrefix(raw, "/"):
		if origin == nil {
			return ""
		}
		return origin.Scheme + "://" + origin.Host + raw
	default:
		if origin == nil {
			return ""
		}
		return origin.Scheme + "://" + origin.Host + "/" + raw
	}
}

// encodeTarget percent-encodes an absolute URL so it survives as a
// single path segment, with spaces as %20 rather than '+'.
func encodeTarget(absolute string) string {
	return strings.ReplaceAll(url.QueryEscape(absolute), "+", "%20")
}

// ExtractTarget recovers the absolute target URL from a proxy request
// path. escapedPath must be the still-encoded request path so that
// %2F sequences inside the embedded URL are not mistaken for path
// separators. The caller's query string is re-attached to the target.
func ExtractTarget(escapedPath, rawQuery string) (sessionID, target string, err error) {
	rest, ok := strings.CutPrefix(escapedPath, proxyPathPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: path %q", ErrInvalidTarget, escapedPath)
	}
	sessionID, encoded, ok := strings.Cut(rest, "/")
	if !ok || sessionID == "" || encoded == "" {
		return "", "", fmt.Errorf("%w: missing target", ErrInvalidTarget)
	}

	target, err = url.PathUnescape(encoded)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	if rawQuery != "" {
		if strings.Contains(target, "?") {
			target += "&" + rawQuery
		} else {
			target += "?" + rawQuery
		}
	}
	return sessionID, target, nil
}

// ParseTarget parses and validates target as an absolute http/https
// URL.
func ParseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	return u, nil
}
