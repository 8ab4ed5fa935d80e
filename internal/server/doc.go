// Package server provides the HTTP surfaces of calbot.
//
// # Key Components
//
// CallbackHandler serves GET /callback, the redirect target of the Google
// consent screen. It correlates the callback with the pending authorization
// started by /auth, completes the code exchange, stores the credential and
// notifies the originating chat. It holds no state of its own: the
// credential store is shared with the chat handlers.
//
// CallbackServer hosts the callback handler together with the health
// endpoints:
//   - /healthz: liveness
//   - /readyz: readiness, 503 while starting or shutting down
//   - /healthz/detailed: status, uptime and version
//
// Every request passes through a middleware that records
// http_requests_total and http_request_duration_seconds.
//
// MetricsServer exposes the Prometheus registry on its own address so that
// operational metrics stay off the public callback listener.
package server
