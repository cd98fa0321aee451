// Package runtime dispatches canonical requests to the agent runtime.
//
// # Overview
//
// The Dispatcher rebuilds the outbound request from the inbound snapshot:
// same method, same absolute URL, every original header, Content-Type set to
// application/json and the canonical payload as the body. It then hands the
// request to a Runtime together with an Invocation (resource id, registered
// agents, execution context) and returns whatever response comes back.
//
// # Execution Context
//
//	user-id            value of X-User-ID, or "anonymous"
//	temperature-scale  "celsius"
//
// # HTTPRuntime
//
// HTTPRuntime forwards to a configured endpoint and describes the invocation
// in X-Runtime-Resource-Id, X-Runtime-Agents and X-Runtime-Context headers.
// Nothing is retried or cached.
package runtime
