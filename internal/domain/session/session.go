package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// userAgents is the fixed pool a new session draws its identity from.
// The choice is made once at creation and never changes afterwards, so
// upstream servers see a consistent browser across the session's life.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Session is one isolated browsing identity. All mutable state is
// guarded by mu; the cookie jar is additionally safe on its own, but
// callers go through the accessors so activity tracking stays accurate.
type Session struct {
	id        string
	userAgent string
	createdAt time.Time

	mu           sync.Mutex
	jar          *cookiejar.Jar
	navigator    Navigator
	activeURL    string
	lastActivity time.Time
	closed       bool
}

func newSession(id, userAgent string, now time.Time) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Session{
		id:           id,
		userAgent:    userAgent,
		createdAt:    now,
		jar:          jar,
		lastActivity: now,
	}, nil
}

// ID returns the immutable session identifier.
func (s *Session) ID() string { return s.id }

// UserAgent returns the user agent fixed at creation.
func (s *Session) UserAgent() string { return s.userAgent }

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// CookieHeader renders the Cookie header value for a request to target,
// honoring domain, path, secure and expiry scoping. Empty when no
// cookie applies.
func (s *Session) CookieHeader(target *url.URL) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cookies := s.jar.Cookies(target)
	if len(cookies) == 0 {
		return ""
	}
	var b []byte
	for i, ck := range cookies {
		if i > 0 {
			b = append(b, "; "...)
		}
		b = append(b, ck.Name...)
		b = append(b, '=')
		b = append(b, ck.Value...)
	}
	return string(b)
}

// StoreCookies merges upstream Set-Cookie header values for target into
// the jar. Malformed values are skipped by the parser rather than
// failing the response.
func (s *Session) StoreCookies(target *url.URL, setCookie []string) {
	if len(setCookie) == 0 {
		return
	}
	header := http.Header{}
	for _, v := range setCookie {
		header.Add("Set-Cookie", v)
	}
	cookies := (&http.Response{Header: header}).Cookies()
	if len(cookies) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(target, cookies)
}

// Touch records activity at now. The activity clock never moves
// backwards, even when touches race.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// SetActiveURL records the page the session most recently requested and
// counts it as activity.
func (s *Session) SetActiveURL(u string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeURL = u
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// ActiveURL returns the most recently recorded page URL.
func (s *Session) ActiveURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeURL
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IdleFor reports how long the session has been idle at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Navigator returns the attached navigation capability, or nil.
func (s *Session) Navigator() Navigator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigator
}

func (s *Session) attachNavigator(n Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigator = n
}

// Info snapshots the session for stats and the session-info event.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		UserID:       s.id,
		ActiveURL:    s.activeURL,
		UserAgent:    s.userAgent,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		IsActive:     !s.closed,
	}
}

// close releases the navigator exactly once. Safe to call repeatedly;
// later calls are no-ops.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	nav := s.navigator
	s.navigator = nil
	s.mu.Unlock()

	if nav != nil {
		_ = nav.Close()
	}
}
