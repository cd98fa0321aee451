// Package auth provides bearer token authentication for copilot-gateway.
//
// # JWT Tokens
//
// Callers authenticate with HS256 JWTs signed with the configured
// auth.jwt_secret. Tokens carry the registered claims only:
//
//   - iss: always "copilot-gateway"
//   - sub: caller identifier (required)
//   - exp: optional expiry
//
// Tokens are minted with the CLI:
//
//	copilot-gateway token --subject frontend-1 --ttl 720h
//
// # HTTP Middleware
//
//	HTTPAuthMiddleware(verifier, logger)
//
// Requests without a valid token get 401 with a JSON error body. Every
// method is checked, OPTIONS included. The verified subject is
// available to handlers via FromContext or SubjectFromContext; the gateway
// records it with each request.
//
// When no secret is configured the gateway does not install the middleware.
package auth
