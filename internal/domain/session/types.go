package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the session id does not resolve to a live session.
	ErrNotFound = errors.New("session not found")
	// ErrCapacityExceeded indicates the registry is at its configured maximum.
	ErrCapacityExceeded = errors.New("maximum session limit reached")
	// ErrRegistryClosed indicates the registry stopped admitting sessions.
	ErrRegistryClosed = errors.New("session registry is shutting down")
)

// Navigator is an optional capability a session may hold for delegated
// navigation and script execution. The proxy path never requires it.
type Navigator interface {
	Navigate(ctx context.Context, url string) (*NavigationResult, error)
	RunScript(ctx context.Context, script string) (*ScriptResult, error)
	Close() error
}

// NavigationResult describes a completed delegated navigation.
type NavigationResult struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Status int    `json:"status"`
}

// ScriptResult describes a delegated script execution.
type ScriptResult struct {
	Value   interface{} `json:"result"`
	Console []string    `json:"console,omitempty"`
}

// NavigatorFactory builds a Navigator for a freshly created session.
type NavigatorFactory func(sessionID string) Navigator

// Info is an observability snapshot of a single session.
type Info struct {
	UserID       string    `json:"userId"`
	ActiveURL    string    `json:"activeUrl"`
	UserAgent    string    `json:"userAgent"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IsActive     bool      `json:"isActive"`
}

// Stats summarizes the registry for the stats API and broadcasts.
type Stats struct {
	TotalSessions  int    `json:"totalSessions"`
	ActiveSessions int    `json:"activeSessions"`
	MaxSessions    int    `json:"maxSessions"`
	Sessions       []Info `json:"sessions"`
}
