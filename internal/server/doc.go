// Package server implements the HTTP and WebSocket surface of the chat relay.
//
// Each accepted WebSocket gets its own handling loop (client.go) that feeds
// the broadcast engine. The remaining files cover configuration, origin
// policy, rate limiting, routing, HTTP handlers and server lifecycle.
package server
