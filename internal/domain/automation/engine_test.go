package automation

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multibrowse/backend/internal/domain/proxy"
	"github.com/multibrowse/backend/internal/infrastructure/logging"
)

// blockingFetcher parks in Handle until released, signalling entry.
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) Handle(_ context.Context, _, _, _ string, _ http.Header, _ io.Reader) (*proxy.Response, error) {
	close(f.entered)
	<-f.release
	return &proxy.Response{Status: 200, Final: "https://example.com/"}, nil
}

type fakeFetcher struct {
	lastTarget string
	resp       *proxy.Response
	err        error
}

func (f *fakeFetcher) Handle(_ context.Context, _, target, _ string, _ http.Header, _ io.Reader) (*proxy.Response, error) {
	f.lastTarget = target
	return f.resp, f.err
}

func newNavigator(t *testing.T, fetcher Fetcher, timeout time.Duration) *navigator {
	t.Helper()
	engine := NewEngine(Config{ScriptTimeout: timeout}, fetcher, logging.NewNop())
	return engine.NavigatorFor("sess_1").(*navigator)
}

func TestNavigate(t *testing.T) {
	fetcher := &fakeFetcher{resp: &proxy.Response{
		Status: 200,
		Final:  "https://example.com/landed",
		Title:  "Landed",
	}}
	nav := newNavigator(t, fetcher, 0)

	result, err := nav.Navigate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landed", result.URL)
	assert.Equal(t, "Landed", result.Title)
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, "https://example.com/", fetcher.lastTarget)
}

func TestNavigatePropagatesErrors(t *testing.T) {
	fetcher := &fakeFetcher{err: proxy.ErrUnsafeTarget}
	nav := newNavigator(t, fetcher, 0)

	_, err := nav.Navigate(context.Background(), "http://127.0.0.1/")
	assert.ErrorIs(t, err, proxy.ErrUnsafeTarget)
}

func TestRunScript(t *testing.T) {
	nav := newNavigator(t, &fakeFetcher{}, time.Second)

	result, err := nav.RunScript(context.Background(), `
		console.log("hello", 42);
		1 + 2;
	`)
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.Value)
	assert.Equal(t, []string{"hello 42"}, result.Console)
}

func TestRunScriptError(t *testing.T) {
	nav := newNavigator(t, &fakeFetcher{}, time.Second)

	_, err := nav.RunScript(context.Background(), `throw new Error("boom")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunScriptTimeout(t *testing.T) {
	nav := newNavigator(t, &fakeFetcher{}, 50*time.Millisecond)

	_, err := nav.RunScript(context.Background(), `while (true) {}`)
	assert.ErrorIs(t, err, ErrScriptTimeout)
}

func TestRunScriptNoHostAccess(t *testing.T) {
	nav := newNavigator(t, &fakeFetcher{}, time.Second)

	// The sandbox exposes no fetch, require or process.
	for _, script := range []string{"fetch", "require", "process"} {
		_, err := nav.RunScript(context.Background(), script)
		assert.Error(t, err, "%s must not be defined", script)
	}
}

func TestCloseDoesNotWaitForNavigation(t *testing.T) {
	fetcher := &blockingFetcher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	nav := newNavigator(t, fetcher, time.Second)

	navDone := make(chan error, 1)
	go func() {
		_, err := nav.Navigate(context.Background(), "https://example.com/")
		navDone <- err
	}()
	<-fetcher.entered

	// Close must return while the page load is still in flight.
	closed := make(chan struct{})
	go func() {
		_ = nav.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("close blocked behind an in-flight navigation")
	}

	close(fetcher.release)
	assert.ErrorIs(t, <-navDone, ErrNavigatorClosed)
}

func TestClosedNavigatorRefusesWork(t *testing.T) {
	nav := newNavigator(t, &fakeFetcher{}, time.Second)
	require.NoError(t, nav.Close())
	require.NoError(t, nav.Close(), "close is idempotent")

	_, err := nav.Navigate(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, ErrNavigatorClosed)
	_, err = nav.RunScript(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNavigatorClosed)
}
