// Package handlers implements the file-system control handlers: oplock
// arbitration, keepalive activation, and path-change notification.
package handlers

import "context"

// ControlContext carries request context through control handlers
type ControlContext struct {
	// Context for cancellation and deadlines
	Context context.Context

	// RequestID is the host's identifier for this control request,
	// used to correlate log records.
	RequestID uint64

	// ProcessID is the requestor process, when the host reports it.
	ProcessID uint32
}

// NewControlContext creates a new context from request parameters
func NewControlContext(ctx context.Context, requestID uint64, processID uint32) *ControlContext {
	return &ControlContext{
		Context:   ctx,
		RequestID: requestID,
		ProcessID: processID,
	}
}
