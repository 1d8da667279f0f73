package handlers

import (
	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

// ActivateKeepalive designates the requesting handle as the volume's
// keepalive handle. The volume treats the handle's liveness as a signal
// that its controlling process is still present.
//
// Re-activation by the handle that is already active is allowed; a
// second, distinct handle is rejected while the first is active.
func (h *Handler) ActivateKeepalive(cc *ControlContext, req *ControlRequest) *HandlerResult {
	hc := req.Handle
	node := hc.Node()
	vol := node.Volume()

	if !node.IsKeepaliveCapable() {
		logger.Warn("keepalive activation on wrong file",
			logger.KeyNode, node.Name())
		return NewErrorResult(types.StatusInvalidParameter)
	}

	if vol.KeepaliveActive() && !hc.KeepaliveActive() {
		logger.Warn("keepalive activation while a different keepalive handle is active",
			logger.KeyNode, node.Name())
		return NewErrorResult(types.StatusInvalidParameter)
	}

	logger.Info("activating keepalive handle",
		logger.KeyNode, node.Name(),
		"process_id", cc.ProcessID)
	vol.ActivateKeepalive(hc)

	return NewResult(types.StatusSuccess, nil)
}
