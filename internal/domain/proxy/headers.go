package proxy

import (
	"net/http"
	"strings"
)

// forwardedRequestHeaders are the only client headers relayed upstream.
// Everything else, hop-by-hop headers and client cookies included, is
// dropped so the session jar stays the single cookie source.
var forwardedRequestHeaders = []string{
	"Authorization",
	"Content-Type",
	"Content-Length",
	"X-Requested-With",
	"Accept",
	"Accept-Language",
}

// forwardedResponseHeaders are the only upstream headers relayed back.
// Framing policy headers (Content-Security-Policy, X-Frame-Options,
// Strict-Transport-Security) never pass, which is what lets the
// rewritten page render inside the client frame.
var forwardedResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Cache-Control",
	"Expires",
	"Last-Modified",
	"Etag",
}

// BuildRequestHeaders assembles the upstream header set: the allow-list
// subset of the client's headers plus a synthesized browser identity.
// referer, when non-empty, is the session's active page.
func BuildRequestHeaders(client http.Header, userAgent, referer string) http.Header {
	h := http.Header{}
	for _, name := range forwardedRequestHeaders {
		if v := client.Get(name); v != "" {
			h.Set(name, v)
		}
	}

	h.Set("User-Agent", userAgent)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
	if h.Get("Accept") == "" {
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// FilterResponseHeaders reduces upstream headers to the relayed subset.
// Rewritten HTML additionally gets caching disabled, since the body the
// client receives depends on the session.
func FilterResponseHeaders(upstream http.Header, htmlRewritten bool) http.Header {
	h := http.Header{}
	for _, name := range forwardedResponseHeaders {
		if v := upstream.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	if htmlRewritten {
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Del("Expires")
		h.Del("Etag")
		h.Del("Last-Modified")
	}
	return h
}

// ContentClass buckets a Content-Type for rewriting and metrics.
func ContentClass(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/html"):
		return "html"
	case strings.Contains(ct, "text/css"):
		return "css"
	case strings.HasPrefix(ct, "image/"):
		return "image"
	case strings.Contains(ct, "javascript"):
		return "script"
	case strings.Contains(ct, "json"):
		return "json"
	default:
		return "other"
	}
}
