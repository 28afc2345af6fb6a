// Package ws implements the realtime event protocol over WebSocket:
// session registration, delegated navigation, script execution and
// registry stats broadcasts.
package ws
