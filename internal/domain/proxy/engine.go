package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"

	"github.com/multibrowse/backend/internal/domain/session"
	"github.com/multibrowse/backend/internal/infrastructure/logging"
	"github.com/multibrowse/backend/internal/infrastructure/monitoring"
	"github.com/multibrowse/backend/internal/infrastructure/resilience"
)

// Config tunes the upstream fetch path.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	AllowPrivate bool
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRedirects: 5,
		MaxBodyBytes: 10 << 20,
	}
}

// SessionSource resolves live sessions. Satisfied by the registry.
type SessionSource interface {
	Get(sessionID string) (*session.Session, bool)
}

// targetChecker validates targets before they are fetched.
type targetChecker interface {
	Check(u *url.URL) error
}

// Response is a proxied upstream response after header filtering and
// content rewriting. Status is relayed as received, including errors.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	Title   string
	Final   string // URL after redirects
	Class   string // content class for metrics
}

// Engine executes proxied fetches for sessions.
type Engine struct {
	cfg      Config
	sessions SessionSource
	safety   targetChecker
	client   *resty.Client
	breaker  *resilience.Breaker
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewEngine builds an Engine around the shared upstream client. The
// metrics handle may be nil.
func NewEngine(cfg Config, sessions SessionSource, logger *logging.Logger, metrics *monitoring.Metrics) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultConfig().MaxRedirects
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects))
	client.SetTransport(&limitedTransport{
		inner: retryClient.HTTPClient.Transport,
		// One byte past the cap so the post-read length check can tell
		// an at-limit body from an oversized one.
		max: cfg.MaxBodyBytes + 1,
	})

	breaker := resilience.New("upstream", resilience.Settings{
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Engine{
		cfg:      cfg,
		sessions: sessions,
		safety:   NewSafetyPolicy(cfg.AllowPrivate),
		client:   client,
		breaker:  breaker,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Handle proxies one request for sessionID to target. Upstream HTTP
// error statuses are relayed, not converted to errors; the error return
// covers validation, safety and transport failures only.
func (e *Engine) Handle(ctx context.Context, sessionID, target, method string, clientHeaders http.Header, body io.Reader) (*Response, error) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, session.ErrNotFound
	}

	u, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if err := e.safety.Check(u); err != nil {
		return nil, err
	}

	// Referer reflects the page being navigated from, not a reload of
	// the same target.
	referer := s.ActiveURL()
	if referer == u.String() {
		referer = ""
	}
	headers := BuildRequestHeaders(clientHeaders, s.UserAgent(), referer)
	if cookie := s.CookieHeader(u); cookie != "" {
		headers.Set("Cookie", cookie)
	}

	start := e.now()
	var resp *resty.Response
	err = e.breaker.Do(func() error {
		req := e.client.R().SetContext(ctx).SetHeaderMultiValues(headers)
		if body != nil {
			req.SetBody(body)
		}
		var execErr error
		resp, execErr = req.Execute(method, u.String())
		return execErr
	})
	upstreamDur := e.now().Sub(start)
	if err != nil {
		// Both sentinels stay visible: callers map circuit-open and
		// transport failures to different statuses.
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	finalURL := u
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL
	}

	// Merge upstream cookies into the jar before touching the body so a
	// redirect chain's Set-Cookie headers are not lost.
	s.StoreCookies(finalURL, resp.Header().Values("Set-Cookie"))

	raw := resp.Body()
	if int64(len(raw)) > e.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrUpstream, e.cfg.MaxBodyBytes)
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" && len(raw) > 0 {
		contentType = mimetype.Detect(raw).String()
	}
	class := ContentClass(contentType)

	out := e.renderBody(raw, resp.Header(), contentType, class, finalURL, sessionID)
	out.Status = resp.StatusCode()
	out.Final = finalURL.String()
	out.Class = class

	now := e.now()
	if out.Title != "" || class == "html" {
		s.SetActiveURL(finalURL.String(), now)
	} else {
		s.Touch(now)
	}
	if e.metrics != nil {
		e.metrics.RecordProxyRequest(method, class, upstreamDur)
	}
	return out, nil
}

// renderBody decodes and rewrites the body where the content class
// calls for it, degrading to an untouched passthrough whenever a step
// fails.
func (e *Engine) renderBody(raw []byte, upstream http.Header, contentType, class string, finalURL *url.URL, sessionID string) *Response {
	encoding := upstream.Get("Content-Encoding")

	if class != "html" && class != "css" {
		h := FilterResponseHeaders(upstream, false)
		if encoding != "" {
			h.Set("Content-Encoding", encoding)
		}
		return &Response{Headers: h, Body: raw}
	}

	decoded, ok, err := decodeBody(raw, encoding)
	if err != nil || !ok {
		if err != nil {
			e.logger.Warn("body decode failed, passing through",
				zap.String("encoding", encoding), zap.Error(err))
		}
		h := FilterResponseHeaders(upstream, false)
		if encoding != "" {
			h.Set("Content-Encoding", encoding)
		}
		return &Response{Headers: h, Body: raw}
	}

	switch class {
	case "css":
		body := []byte(RewriteCSS(string(decoded), finalURL, sessionID))
		h := FilterResponseHeaders(upstream, false)
		h.Del("Content-Length")
		return &Response{Headers: h, Body: body}

	default: // html
		if !looksUTF8(decoded, contentType) {
			h := FilterResponseHeaders(upstream, false)
			h.Del("Content-Length")
			return &Response{Headers: h, Body: decoded}
		}
		start := e.now()
		rewritten, title, err := RewriteHTML(decoded, finalURL, sessionID)
		if err != nil {
			e.logger.Warn("html rewrite failed, serving original",
				zap.String("url", finalURL.String()), zap.Error(err))
			h := FilterResponseHeaders(upstream, false)
			h.Del("Content-Length")
			return &Response{Headers: h, Body: decoded}
		}
		if e.metrics != nil {
			e.metrics.RecordRewrite(e.now().Sub(start))
		}
		h := FilterResponseHeaders(upstream, true)
		h.Del("Content-Length")
		return &Response{Headers: h, Body: rewritten, Title: title}
	}
}

// limitedTransport caps how many response body bytes may cross the
// wire, so an oversized upstream fails while streaming instead of
// after being buffered whole.
type limitedTransport struct {
	inner http.RoundTripper
	max   int64
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil || resp == nil || resp.Body == nil {
		return resp, err
	}
	resp.Body = &cappedBody{rc: resp.Body, remaining: t.max}
	return resp, nil
}

type cappedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, errBodyTooLarge
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *cappedBody) Close() error { return b.rc.Close() }

var errBodyTooLarge = errors.New("response body exceeds configured limit")

// looksUTF8 reports whether an HTML body is safe to parse and
// re-serialize as UTF-8. Pages in legacy encodings pass through
// untouched rather than being corrupted by re-encoding.
func looksUTF8(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "charset=") &&
		!strings.Contains(strings.ToLower(contentType), "charset=utf-8") {
		return false
	}
	sample := body
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	best, err := chardet.NewHtmlDetector().DetectBest(sample)
	if err != nil {
		return true
	}
	switch best.Charset {
	case "UTF-8", "ISO-8859-1", "US-ASCII":
		// ISO-8859-1 guesses are mostly ASCII bodies.
		return true
	default:
		return best.Confidence < 60
	}
}
