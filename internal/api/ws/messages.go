package ws

import (
	"encoding/json"
	"time"

	"github.com/multibrowse/backend/internal/domain/session"
)

// Client-originated events.
const (
	EventRegisterUser   = "register-user"
	EventNavigate       = "navigate"
	EventExecuteScript  = "execute-script"
	EventGetSessionInfo = "get-session-info"
	EventCreateTab      = "create-tab"
	EventCloseSession   = "close-session"
	EventPing           = "ping"
)

// Server-originated events.
const (
	EventUserRegistered      = "user-registered"
	EventRegistrationError   = "registration-error"
	EventNavigationStarted   = "navigation-started"
	EventNavigationCompleted = "navigation-completed"
	EventNavigationError     = "navigation-error"
	EventScriptResult        = "script-result"
	EventScriptError         = "script-error"
	EventSessionInfo         = "session-info"
	EventSessionInfoError    = "session-info-error"
	EventTabCreated          = "tab-created"
	EventTabCreationError    = "tab-creation-error"
	EventSessionClosed       = "session-closed"
	EventCloseSessionError   = "close-session-error"
	EventPong                = "pong"
	EventSessionStats        = "session-stats"
)

// Envelope is the wire frame: an event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterPayload asks for a session, optionally reclaiming an existing
// one by id.
type RegisterPayload struct {
	UserID string `json:"userId,omitempty"`
}

// NavigatePayload drives a delegated navigation.
type NavigatePayload struct {
	URL string `json:"url"`
}

// ScriptPayload carries a script for sandboxed execution.
type ScriptPayload struct {
	Script string `json:"script"`
}

// TabPayload opens an additional session, optionally with a first URL.
type TabPayload struct {
	URL string `json:"url,omitempty"`
}

// UserRegistered confirms a session binding.
type UserRegistered struct {
	UserID      string       `json:"userId"`
	SessionInfo session.Info `json:"sessionInfo"`
	Reconnected bool         `json:"reconnected"`
}

// NavigationStarted announces a navigation is underway.
type NavigationStarted struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// NavigationCompleted reports a finished navigation.
type NavigationCompleted struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NavigationError reports a failed navigation.
type NavigationError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ErrorPayload is the generic failure shape.
type ErrorPayload struct {
	Error string `json:"error"`
}

// SessionInfoPayload wraps a session snapshot.
type SessionInfoPayload struct {
	SessionInfo session.Info `json:"sessionInfo"`
}

// TabCreated confirms an additional session.
type TabCreated struct {
	UserID      string       `json:"userId"`
	SessionInfo session.Info `json:"sessionInfo"`
	URL         string       `json:"url,omitempty"`
}

// StatsPayload is the periodic registry broadcast, extended with hub
// connectivity.
type StatsPayload struct {
	session.Stats
	ConnectedClients int       `json:"connectedClients"`
	ActiveUsers      int       `json:"activeUsers"`
	Timestamp        time.Time `json:"timestamp"`
}
