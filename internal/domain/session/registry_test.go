package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multibrowse/backend/internal/infrastructure/logging"
)

func testRegistry(t *testing.T, cfg Config, opts ...Option) *Registry {
	t.Helper()
	r := NewRegistry(cfg, logging.NewNop(), opts...)
	t.Cleanup(r.Shutdown)
	return r
}

func TestCreateAssignsUniqueIdentity(t *testing.T) {
	r := testRegistry(t, Config{MaxSessions: 10})

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		s, err := r.Create()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(s.ID(), "sess_"))
		assert.False(t, seen[s.ID()], "duplicate session id %s", s.ID())
		seen[s.ID()] = true
		assert.Contains(t, userAgents, s.UserAgent())
	}
	assert.Equal(t, 5, r.Count())
}

func TestUserAgentPool(t *testing.T) {
	require.Len(t, userAgents, 5)

	var chrome, firefox int
	for _, ua := range userAgents {
		switch {
		case strings.Contains(ua, "Chrome/"):
			chrome++
		case strings.Contains(ua, "Firefox/"):
			firefox++
		default:
			t.Errorf("unexpected browser family: %s", ua)
		}
	}
	assert.Equal(t, 3, chrome, "windows, macos and linux chrome")
	assert.Equal(t, 2, firefox, "windows and macos firefox")
}

func TestCreateRejectsAtCapacity(t *testing.T) {
	r := testRegistry(t, Config{MaxSessions: 10})

	for i := 0; i < 10; i++ {
		_, err := r.Create()
		require.NoError(t, err)
	}

	_, err := r.Create()
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 10, r.Count(), "failed create must not change the registry")

	// Closing one frees a slot.
	stats := r.Stats()
	require.True(t, r.Close(stats.Sessions[0].UserID))
	_, err = r.Create()
	assert.NoError(t, err)
}

func TestCreateConcurrentHonorsLimit(t *testing.T) {
	r := testRegistry(t, Config{MaxSessions: 10})

	var wg sync.WaitGroup
	errs := make([]error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Create()
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 10, created)
	assert.Equal(t, 10, r.Count())
}

func TestCloseIsIdempotent(t *testing.T) {
	released := 0
	r := testRegistry(t, Config{MaxSessions: 10},
		WithNavigatorFactory(func(string) Navigator {
			return &stubNavigator{onClose: func() { released++ }}
		}))

	s, err := r.Create()
	require.NoError(t, err)

	assert.True(t, r.Close(s.ID()))
	assert.False(t, r.Close(s.ID()))
	_, ok := r.Get(s.ID())
	assert.False(t, ok)
	assert.Equal(t, 1, released, "navigator must be released exactly once")
}

func TestSweepEvictsOnlyIdleSessions(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	r := testRegistry(t, Config{MaxSessions: 10, IdleTimeout: 30 * time.Minute}, WithClock(clock))

	idle, err := r.Create()
	require.NoError(t, err)
	fresh, err := r.Create()
	require.NoError(t, err)

	// One second short of the threshold: nobody is evicted.
	advance(30*time.Minute - time.Second)
	fresh.Touch(clock())
	assert.Equal(t, 0, r.SweepIdle())
	assert.Equal(t, 2, r.Count())

	// Crossing the threshold evicts only the stale session.
	advance(time.Second)
	assert.Equal(t, 1, r.SweepIdle())
	_, ok := r.Get(idle.ID())
	assert.False(t, ok)
	_, ok = r.Get(fresh.ID())
	assert.True(t, ok)
}

func TestShutdownClosesEverything(t *testing.T) {
	released := 0
	r := NewRegistry(Config{MaxSessions: 10}, logging.NewNop(),
		WithNavigatorFactory(func(string) Navigator {
			return &stubNavigator{onClose: func() { released++ }}
		}))
	r.StartSweeper()

	for i := 0; i < 3; i++ {
		_, err := r.Create()
		require.NoError(t, err)
	}

	r.Shutdown()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 3, released)

	_, err := r.Create()
	assert.ErrorIs(t, err, ErrRegistryClosed)

	// Second shutdown is a no-op.
	r.Shutdown()
}

func TestStatsSnapshot(t *testing.T) {
	r := testRegistry(t, Config{MaxSessions: 10})

	a, err := r.Create()
	require.NoError(t, err)
	_, err = r.Create()
	require.NoError(t, err)

	a.SetActiveURL("https://example.com/", time.Now())

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 10, stats.MaxSessions)
	require.Len(t, stats.Sessions, 2)

	var found bool
	for _, info := range stats.Sessions {
		if info.UserID == a.ID() {
			found = true
			assert.Equal(t, "https://example.com/", info.ActiveURL)
			assert.True(t, info.IsActive)
		}
	}
	assert.True(t, found)
}

func TestCookieScopingAcrossDomains(t *testing.T) {
	r := testRegistry(t, Config{MaxSessions: 10})

	s, err := r.Create()
	require.NoError(t, err)

	origin := mustParse(t, "https://example.com/login")
	s.StoreCookies(origin, []string{"a=1; Path=/", "b=2; Path=/admin"})

	assert.Equal(t, "a=1", s.CookieHeader(mustParse(t, "https://example.com/page")))
	assert.Contains(t, s.CookieHeader(mustParse(t, "https://example.com/admin/x")), "b=2")
	assert.Empty(t, s.CookieHeader(mustParse(t, "https://other.com/page")),
		"cookies must not leak across registrable domains")
}

func TestCookieIsolationBetweenSessions(t *testing.T) {
	r := testRegistry(t, Config{MaxSessions: 10})

	s1, err := r.Create()
	require.NoError(t, err)
	s2, err := r.Create()
	require.NoError(t, err)

	target := mustParse(t, "https://example.com/")
	s1.StoreCookies(target, []string{"token=abc"})

	assert.Equal(t, "token=abc", s1.CookieHeader(target))
	assert.Empty(t, s2.CookieHeader(target), "jars must be per session")
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	r := testRegistry(t, Config{MaxSessions: 10})

	s, err := r.Create()
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	s.Touch(later)
	s.Touch(later.Add(-30 * time.Minute))
	assert.Equal(t, later, s.LastActivity())
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubNavigator struct {
	onClose func()
	once    sync.Once
}

func (n *stubNavigator) Navigate(_ context.Context, u string) (*NavigationResult, error) {
	return &NavigationResult{URL: u, Status: 200}, nil
}

func (n *stubNavigator) RunScript(_ context.Context, _ string) (*ScriptResult, error) {
	return &ScriptResult{}, nil
}

func (n *stubNavigator) Close() error {
	n.once.Do(func() {
		if n.onClose != nil {
			n.onClose()
		}
	})
	return nil
}
