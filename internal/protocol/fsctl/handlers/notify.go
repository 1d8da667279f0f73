package handlers

import (
	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

// NotifyPathChange forwards a path change reported by the userspace
// filesystem to the volume's notification registry, completing any
// matching directory-watch requests.
//
// A registry verdict of STATUS_OBJECT_NAME_INVALID means the path could
// not be trusted; every pending waiter on the volume is then cancelled
// so a corrupt path cannot poison the wait set.
func (h *Handler) NotifyPathChange(cc *ControlContext, req *ControlRequest) *HandlerResult {
	payload, err := DecodeNotifyPathPayload(req.Input)
	if err != nil {
		logger.Debug("malformed notify path payload", "error", err)
		return NewErrorResult(types.StatusBufferTooSmall)
	}

	node := req.Handle.Node()
	vol := node.Volume()

	logger.Debug("path change notification",
		logger.KeyNode, node.Name(),
		logger.KeyPath, payload.Path,
		"completion_filter", payload.CompletionFilter,
		"action", payload.Action)

	node.RLock()
	status := vol.Notify().ReportChange(payload.Path, payload.CompletionFilter, payload.Action)
	node.RUnlock()

	if status == types.StatusObjectNameInvalid {
		vol.Notify().CleanupAllWaiters()
	}

	return NewErrorResult(status)
}
