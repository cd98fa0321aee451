// Package registry holds the agents and workflows the runtime serves.
//
// The registry is built once from configuration and passed to the gateway.
// It has no mutating methods, so it is safe to share between requests.
package registry
