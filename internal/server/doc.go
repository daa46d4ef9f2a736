// Package server provides the HTTP surface of meetwhen and the server
// context shared with the MCP tools.
//
// # Key Components
//
// ServerContext owns the long-lived dependencies: the credential store, the
// resolver, the scheduler and the optional instrumentation provider.
//
// APIServer is a chi router exposing:
//   - GET /availability?participants=a,b&period=7&duration=0.5: common free
//     windows; period is in days and duration in hours
//   - GET /authorize: redirect to Google's consent screen
//   - GET /oauth2callback: exchange the code and store the tokens under the
//     account's primary calendar id
//   - POST /revoke?identity=x: revoke the grant at Google and forget it
//   - GET /healthz, /readyz, /healthz/detailed: Kubernetes probes
//
// Errors map to status codes so clients can act on them: 400 for invalid
// queries, 403 when a participant has to authorize (again), 502 when Google
// is unavailable.
//
// MetricsServer serves the Prometheus registry of the instrumentation
// provider on a dedicated port.
package server
