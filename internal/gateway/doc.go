// Package gateway orchestrates the copilot-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the copilot-gateway
// server. New builds every component once from configuration: the agent
// registry, attachment uploader, message rewriter, request normalizer, runtime
// dispatcher, and telemetry store. Nothing is rebuilt per request.
//
// # Request Flow
//
// A request to the configured route (default /copilotkit, any method) passes
// through:
//
//  1. CORS middleware (preflights end here with 204)
//  2. Bearer token middleware, when auth.jwt_secret is set
//  3. handleCopilot: normalize the body, upload PDF attachments, dispatch
//     the canonical JSON to the runtime with the execution context
//  4. The runtime's status, headers, and body are relayed unchanged
//
// Failures before the runtime answers are reported as JSON errors:
//
//	400  malformed payload, malformed messages, missing or empty file
//	502  attachment upload failed, runtime unreachable
//
// Every request carries an X-Request-ID (the inbound value or a new UUID) in
// logs, the forwarded request, the response, and the telemetry row.
//
// # HTTP API
//
//	GET /health          - liveness
//	GET /health/ready    - 200 when the resource agent is registered
//	GET /api/agents      - registered agents
//	GET /api/workflows   - registered workflows
//	GET /api/requests    - recent requests with their uploads (?limit=N, max 100)
//
// # Lifecycle
//
// Run listens on server.http_addr, or on the tailnet when tailscale.enabled
// is set (plain HTTP on :80, Tailscale certificates on :443 with https, or a
// public Funnel). It blocks until the context is canceled, then shuts down
// with a five second grace period.
package gateway
