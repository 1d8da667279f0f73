package handlers

import "github.com/marmos91/ufsd/internal/protocol/fsctl/types"

// HandlerResult contains the response data and status.
//
// Every control handler returns a HandlerResult indicating the outcome
// of the operation and any response data for the host.
type HandlerResult struct {
	// Data contains the response payload, if the operation produces
	// one. Nil for most control paths.
	Data []byte

	// Status is the NT_STATUS code indicating the operation result.
	Status types.Status
}

// NewResult creates a new handler result with the given status and data.
func NewResult(status types.Status, data []byte) *HandlerResult {
	return &HandlerResult{
		Status: status,
		Data:   data,
	}
}

// NewErrorResult creates an error result with the given status and no data.
func NewErrorResult(status types.Status) *HandlerResult {
	return &HandlerResult{
		Status: status,
	}
}
