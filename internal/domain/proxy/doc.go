// Package proxy fetches upstream pages on behalf of a session and
// rewrites them so every follow-up resource and navigation flows back
// through the service.
//
// The pipeline is: validate the target (scheme and address safety),
// build the outbound request from the session identity plus a header
// allow-list, fetch through a circuit breaker, filter the response
// headers, and rewrite HTML and CSS bodies so embedded URLs point at
// the proxy route. Everything else streams through untouched.
package proxy
