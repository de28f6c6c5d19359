// Package server provides the HTTP and WebSocket surface for the voice engine.
package server

import "time"

const (
	// RateLimitMessages caps control messages per connection per window.
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// maxControlBytes bounds inbound control frames; audio never flows on
	// this socket so frames stay tiny.
	maxControlBytes = 4 << 10

	writeTimeout = 5 * time.Second
)
