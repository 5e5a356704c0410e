// Package transport implements the HTTPS client used to reach the external
// channel services, with TLS 1.2/1.3 bounds and recommended cipher suites.
// Adapters bind the client to the collaborator interfaces the delivery
// strategies consume.
package transport
