// Package dialogue is the I/O boundary to the external text-generation
// service. It carries no business logic: one request in, raw text out.
package dialogue

import "context"

// Request is a single dialogue invocation.
type Request struct {
	SystemInstruction string
	UserUtterance     string
	// Model overrides the configured default when non-empty (per-route).
	Model string
}

// Invoker performs the text-generation call.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}
