// Package session owns the bounded collection of live browsing sessions.
//
// A Session carries the per-user identity the proxy forwards under: a
// cookie jar scoped by RFC 6265 rules, a fixed user agent, and activity
// metadata driving idle eviction. The Registry enforces creation
// capacity, runs the idle sweep, and drains every session on shutdown.
//
// Locking: the registry mutex covers only the session map; each session
// serializes its own mutation so different sessions never contend.
package session
