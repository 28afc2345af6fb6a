// Package automation provides the delegated navigation capability
// attached to sessions: server-side page loads through the proxy
// engine and sandboxed script execution.
package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/multibrowse/backend/internal/domain/proxy"
	"github.com/multibrowse/backend/internal/domain/session"
	"github.com/multibrowse/backend/internal/infrastructure/logging"
)

// ErrScriptTimeout indicates a script exceeded its execution budget.
var ErrScriptTimeout = errors.New("script execution timed out")

// ErrNavigatorClosed indicates the capability was already released.
var ErrNavigatorClosed = errors.New("navigator is closed")

// Fetcher loads pages on behalf of a session. Satisfied by the proxy
// engine.
type Fetcher interface {
	Handle(ctx context.Context, sessionID, target, method string, headers http.Header, body io.Reader) (*proxy.Response, error)
}

// Config tunes automation behavior.
type Config struct {
	ScriptTimeout time.Duration
}

// Engine builds navigators bound to sessions.
type Engine struct {
	cfg     Config
	fetcher Fetcher
	logger  *logging.Logger
}

// NewEngine creates the navigator factory.
func NewEngine(cfg Config, fetcher Fetcher, logger *logging.Logger) *Engine {
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = 5 * time.Second
	}
	return &Engine{cfg: cfg, fetcher: fetcher, logger: logger}
}

// NavigatorFor returns the navigation capability for sessionID. Shaped
// as a session.NavigatorFactory.
func (e *Engine) NavigatorFor(sessionID string) session.Navigator {
	return &navigator{
		sessionID: sessionID,
		fetcher:   e.fetcher,
		timeout:   e.cfg.ScriptTimeout,
		logger:    e.logger,
	}
}

// navigator performs fetch-backed navigation and sandboxed script runs
// for one session. mu guards only the closed flag; page loads and
// script runs happen outside the lock so Close never waits on a fetch
// in flight.
type navigator struct {
	sessionID string
	fetcher   Fetcher
	timeout   time.Duration
	logger    *logging.Logger

	mu     sync.Mutex
	closed bool
}

func (n *navigator) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *navigator) Navigate(ctx context.Context, target string) (*session.NavigationResult, error) {
	if n.isClosed() {
		return nil, ErrNavigatorClosed
	}

	resp, err := n.fetcher.Handle(ctx, n.sessionID, target, http.MethodGet, http.Header{}, nil)
	if err != nil {
		return nil, err
	}
	if n.isClosed() {
		return nil, ErrNavigatorClosed
	}

	n.logger.Debug("navigation completed",
		zap.String("session_id", n.sessionID),
		zap.String("url", resp.Final),
		zap.Int("status", resp.Status))
	return &session.NavigationResult{
		URL:    resp.Final,
		Title:  resp.Title,
		Status: resp.Status,
	}, nil
}

// RunScript executes script in a fresh sandbox with no host access
// beyond a console shim. Long-running scripts are interrupted at the
// configured timeout.
func (n *navigator) RunScript(ctx context.Context, script string) (*session.ScriptResult, error) {
	if n.isClosed() {
		return nil, ErrNavigatorClosed
	}

	vm := goja.New()

	var console []string
	capture := func(call goja.FunctionCall) goja.Value {
		line := ""
		for i, arg := range call.Arguments {
			if i > 0 {
				line += " "
			}
			line += arg.String()
		}
		console = append(console, line)
		return goja.Undefined()
	}
	consoleObj := vm.NewObject()
	_ = consoleObj.Set("log", capture)
	_ = consoleObj.Set("error", capture)
	_ = consoleObj.Set("warn", capture)
	_ = vm.Set("console", consoleObj)

	timeout := n.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(ErrScriptTimeout)
	})
	defer timer.Stop()

	value, err := vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, ErrScriptTimeout
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	var exported interface{}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		exported = value.Export()
	}
	if n.isClosed() {
		return nil, ErrNavigatorClosed
	}
	return &session.ScriptResult{Value: exported, Console: console}, nil
}

func (n *navigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}
