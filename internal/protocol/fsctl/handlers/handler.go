package handlers

import (
	"sync/atomic"
	"time"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
	"github.com/marmos91/ufsd/internal/volume"
	"github.com/marmos91/ufsd/pkg/metrics"
)

// oplockDebug gates per-node oplock bookkeeping and the verbose
// request/result logs. Off by default; flipped once at startup from
// configuration.
var oplockDebug atomic.Bool

// SetOplockDebug toggles oplock debug bookkeeping.
func SetOplockDebug(enabled bool) {
	oplockDebug.Store(enabled)
}

// OplockDebugEnabled reports whether oplock debug bookkeeping is on.
func OplockDebugEnabled() bool {
	return oplockDebug.Load()
}

// Handler holds the collaborators the control handlers delegate to.
type Handler struct {
	// Engine is the host's oplock grant/break state machine.
	Engine OplockEngine

	// Metrics records per-request observability. Nil disables
	// collection.
	Metrics metrics.ControlMetrics
}

// NewHandler creates a control handler bound to an oplock engine.
func NewHandler(engine OplockEngine, m metrics.ControlMetrics) *Handler {
	return &Handler{
		Engine:  engine,
		Metrics: m,
	}
}

// ResolveChain validates the request's identity chain
// (HandleContext -> Node -> Volume -> Device) once, at the dispatch
// boundary. Downstream handlers trust the chain and never re-check the
// kind tags.
func (h *Handler) ResolveChain(req *ControlRequest) types.Status {
	hc := req.Handle
	if hc == nil || hc.Kind() != volume.KindHandle {
		logger.Debug("control request with invalid handle context",
			logger.KeyControlCode, req.Code)
		return types.StatusInvalidParameter
	}

	node := hc.Node()
	if node == nil || node.Kind() != volume.KindNode {
		logger.Debug("control request with invalid node",
			logger.KeyControlCode, req.Code)
		return types.StatusInvalidParameter
	}

	vol := node.Volume()
	if vol == nil || vol.Kind() != volume.KindVolume {
		logger.Debug("control request with invalid volume",
			logger.KeyControlCode, req.Code)
		return types.StatusInvalidParameter
	}

	if vol.Device() == nil {
		logger.Debug("control request with no mount device",
			logger.KeyControlCode, req.Code)
		return types.StatusInvalidParameter
	}

	return types.StatusSuccess
}

// RecordRequest feeds the per-request metrics, if enabled.
func (h *Handler) RecordRequest(code types.ControlCode, status types.Status, duration time.Duration) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RecordRequest(types.ControlCodeName(code), types.StatusName(status), duration)
}
