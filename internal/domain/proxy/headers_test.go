package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildRequestHeaders(t *testing.T) {
	client := http.Header{}
	client.Set("Authorization", "Bearer tok")
	client.Set("Accept-Language", "de-DE")
	client.Set("Cookie", "evil=1")
	client.Set("X-Forwarded-For", "1.2.3.4")
	client.Set("User-Agent", "curl/8.0")

	h := BuildRequestHeaders(client, "TestAgent/1.0", "https://example.com/prev")

	assert.Equal(t, "Bearer tok", h.Get("Authorization"))
	assert.Equal(t, "de-DE", h.Get("Accept-Language"))
	assert.Equal(t, "TestAgent/1.0", h.Get("User-Agent"), "client user agent must be replaced")
	assert.Equal(t, "https://example.com/prev", h.Get("Referer"))
	assert.Equal(t, "gzip, deflate, br", h.Get("Accept-Encoding"))
	assert.Equal(t, "max-age=0", h.Get("Cache-Control"))
	assert.Equal(t, "navigate", h.Get("Sec-Fetch-Mode"))
	assert.Empty(t, h.Get("Cookie"), "client cookies never pass through")
	assert.Empty(t, h.Get("X-Forwarded-For"))
}

func TestBuildRequestHeadersNoReferer(t *testing.T) {
	h := BuildRequestHeaders(http.Header{}, "TestAgent/1.0", "")
	assert.Empty(t, h.Get("Referer"))
	assert.NotEmpty(t, h.Get("Accept"), "a default Accept is synthesized")
}

func TestFilterResponseHeaders(t *testing.T) {
	upstream := http.Header{}
	upstream.Set("Content-Type", "text/html; charset=utf-8")
	upstream.Set("Content-Length", "120")
	upstream.Set("Cache-Control", "public, max-age=3600")
	upstream.Set("Etag", `"abc"`)
	upstream.Set("Content-Security-Policy", "default-src 'self'")
	upstream.Set("X-Frame-Options", "DENY")
	upstream.Set("Strict-Transport-Security", "max-age=63072000")
	upstream.Set("Set-Cookie", "sid=1")

	h := FilterResponseHeaders(upstream, false)
	assert.Equal(t, "text/html; charset=utf-8", h.Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", h.Get("Cache-Control"))
	assert.Empty(t, h.Get("Content-Security-Policy"))
	assert.Empty(t, h.Get("X-Frame-Options"))
	assert.Empty(t, h.Get("Strict-Transport-Security"))
	assert.Empty(t, h.Get("Set-Cookie"), "upstream cookies stay in the jar")

	rewritten := FilterResponseHeaders(upstream, true)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rewritten.Get("Cache-Control"))
	assert.Empty(t, rewritten.Get("Etag"))
}

func TestContentClass(t *testing.T) {
	assert.Equal(t, "html", ContentClass("text/html; charset=utf-8"))
	assert.Equal(t, "css", ContentClass("text/css"))
	assert.Equal(t, "image", ContentClass("image/png"))
	assert.Equal(t, "script", ContentClass("application/javascript"))
	assert.Equal(t, "json", ContentClass("application/json"))
	assert.Equal(t, "other", ContentClass("application/octet-stream"))
	assert.Equal(t, "other", ContentClass(""))
}
