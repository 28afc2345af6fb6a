package proxy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteHTMLAnchors(t *testing.T) {
	page := origin(t, "https://example.com")
	body := []byte(`<html><head><title>Hi</title></head><body><a href="/x">l</a></body></html>`)

	out, title, err := RewriteHTML(body, page, "s1")
	require.NoError(t, err)

	assert.Equal(t, "Hi", title)
	assert.Contains(t, string(out), `href="/proxy/s1/https%3A%2F%2Fexample.com%2Fx"`)
}

func TestRewriteHTMLAllElementKinds(t *testing.T) {
	page := origin(t, "https://example.com/app/")
	body := []byte(`<html><body>
		<a href="https://other.com/page">link</a>
		<form action="/submit"></form>
		<img src="//cdn.com/i.png">
		<script src="/app.js"></script>
		<iframe src="/frame"></iframe>
		<link href="/style.css">
	</body></html>`)

	out, _, err := RewriteHTML(body, page, "s1")
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, `href="/proxy/s1/https%3A%2F%2Fother.com%2Fpage"`)
	assert.Contains(t, html, `action="/proxy/s1/https%3A%2F%2Fexample.com%2Fsubmit"`)
	assert.Contains(t, html, `src="/proxy/s1/https%3A%2F%2Fcdn.com%2Fi.png"`)
	assert.Contains(t, html, `src="/proxy/s1/https%3A%2F%2Fexample.com%2Fapp.js"`)
	assert.Contains(t, html, `src="/proxy/s1/https%3A%2F%2Fexample.com%2Fframe"`)
	assert.Contains(t, html, `href="/proxy/s1/https%3A%2F%2Fexample.com%2Fstyle.css"`)
}

func TestRewriteHTMLLeavesFragmentsAndSchemes(t *testing.T) {
	page := origin(t, "https://example.com")
	body := []byte(`<html><body>
		<a href="#section">anchor</a>
		<a href="mailto:a@b.c">mail</a>
		<a href="javascript:void(0)">js</a>
		<img src="data:image/png;base64,AAAA">
	</body></html>`)

	out, _, err := RewriteHTML(body, page, "s1")
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, `href="#section"`)
	assert.Contains(t, html, `href="mailto:a@b.c"`)
	assert.Contains(t, html, `href="javascript:void(0)"`)
	assert.Contains(t, html, `src="data:image/png;base64,AAAA"`)
}

func TestRewriteHTMLInjectsInterception(t *testing.T) {
	page := origin(t, "https://example.com")

	out, _, err := RewriteHTML([]byte(`<html><body><p>hi</p></body></html>`), page, "s1")
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "__proxyIntercept")
	assert.Contains(t, html, "proxy-navigate")
	assert.Contains(t, html, "position: static !important")
	// Injection lands inside body, after existing content.
	assert.Less(t, strings.Index(html, "<p>hi</p>"), strings.Index(html, "__proxyIntercept"))
}

func TestRewriteHTMLInlineStyles(t *testing.T) {
	page := origin(t, "https://example.com")
	body := []byte(`<html><head><style>.bg { background: url('/img/bg.png'); }</style></head><body></body></html>`)

	out, _, err := RewriteHTML(body, page, "s1")
	require.NoError(t, err)
	assert.Contains(t, string(out), `url('/proxy/s1/https%3A%2F%2Fexample.com%2Fimg%2Fbg.png')`)
}

func TestRewriteHTMLNoTitle(t *testing.T) {
	page := origin(t, "https://example.com")
	out, title, err := RewriteHTML([]byte(`<html><body>x</body></html>`), page, "s1")
	require.NoError(t, err)
	assert.Empty(t, title)
	assert.NotEmpty(t, out)
}
