// Package fsctl provides file-system control request dispatch and result
// types for the ufsd control plane.
package fsctl

import (
	"time"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/handlers"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

// HandlerResult is an alias for the handlers.HandlerResult type
type HandlerResult = handlers.HandlerResult

// OperationHandler is the signature for control operation handlers
type OperationHandler func(
	cc *handlers.ControlContext,
	h *handlers.Handler,
	req *handlers.ControlRequest,
) *HandlerResult

// Operation metadata
type Operation struct {
	Name    string
	Handler OperationHandler
}

// DispatchTable maps control codes to operations
var DispatchTable map[types.ControlCode]*Operation

func init() {
	DispatchTable = map[types.ControlCode]*Operation{
		types.FSCTLActivateKeepalive: {
			Name:    "ACTIVATE_KEEPALIVE",
			Handler: handleActivateKeepalive,
		},
		types.FSCTLNotifyPath: {
			Name:    "NOTIFY_PATH",
			Handler: handleNotifyPath,
		},
		types.FSCTLRequestOplockLevel1: {
			Name:    "REQUEST_OPLOCK_LEVEL_1",
			Handler: handleOplock,
		},
		types.FSCTLRequestOplockLevel2: {
			Name:    "REQUEST_OPLOCK_LEVEL_2",
			Handler: handleOplock,
		},
		types.FSCTLRequestBatchOplock: {
			Name:    "REQUEST_BATCH_OPLOCK",
			Handler: handleOplock,
		},
		types.FSCTLRequestFilterOplock: {
			Name:    "REQUEST_FILTER_OPLOCK",
			Handler: handleOplock,
		},
		types.FSCTLRequestOplock: {
			Name:    "REQUEST_OPLOCK",
			Handler: handleOplock,
		},
		types.FSCTLOplockBreakAcknowledge: {
			Name:    "OPLOCK_BREAK_ACKNOWLEDGE",
			Handler: handleOplock,
		},
		types.FSCTLOpBatchAckClosePending: {
			Name:    "OPBATCH_ACK_CLOSE_PENDING",
			Handler: handleOplock,
		},
		types.FSCTLOplockBreakNotify: {
			Name:    "OPLOCK_BREAK_NOTIFY",
			Handler: handleOplock,
		},
		types.FSCTLOplockBreakAckNo2: {
			Name:    "OPLOCK_BREAK_ACK_NO_2",
			Handler: handleOplock,
		},
		types.FSCTLLockVolume: {
			Name:    "LOCK_VOLUME",
			Handler: handleAlwaysSuccess,
		},
		types.FSCTLUnlockVolume: {
			Name:    "UNLOCK_VOLUME",
			Handler: handleAlwaysSuccess,
		},
		types.FSCTLIsVolumeMounted: {
			Name:    "IS_VOLUME_MOUNTED",
			Handler: handleAlwaysSuccess,
		},
		types.FSCTLGetReparsePoint: {
			Name:    "GET_REPARSE_POINT",
			Handler: handleGetReparsePoint,
		},
	}
}

// Dispatch routes one control request: the identity chain is validated
// once here, then the operation handler runs. Unknown control codes are
// answered with STATUS_INVALID_DEVICE_REQUEST rather than treated as a
// dispatcher failure.
func Dispatch(cc *handlers.ControlContext, h *handlers.Handler, req *handlers.ControlRequest) *HandlerResult {
	start := time.Now()

	var result *HandlerResult
	if status := h.ResolveChain(req); status != types.StatusSuccess {
		result = handlers.NewErrorResult(status)
	} else if op, ok := DispatchTable[req.Code]; ok {
		result = op.Handler(cc, h, req)
	} else {
		logger.Debug("unsupported control code",
			logger.KeyControlCode, req.Code,
			"request_id", cc.RequestID)
		result = handlers.NewErrorResult(types.StatusInvalidDeviceRequest)
	}

	h.RecordRequest(req.Code, result.Status, time.Since(start))
	logger.Debug("control request dispatched",
		logger.KeyControlCode, req.Code,
		logger.KeyStatus, result.Status,
		"request_id", cc.RequestID,
		"delegated", req.Delegated())

	return result
}

// Dispatch handler wrappers - delegate to handlers package
func handleActivateKeepalive(cc *handlers.ControlContext, h *handlers.Handler, req *handlers.ControlRequest) *HandlerResult {
	return h.ActivateKeepalive(cc, req)
}

func handleNotifyPath(cc *handlers.ControlContext, h *handlers.Handler, req *handlers.ControlRequest) *HandlerResult {
	return h.NotifyPathChange(cc, req)
}

func handleOplock(cc *handlers.ControlContext, h *handlers.Handler, req *handlers.ControlRequest) *HandlerResult {
	return h.RequestOplock(cc, req)
}

// handleAlwaysSuccess serves the volume lock/unlock/mounted-query codes:
// they are accepted with no side effect.
func handleAlwaysSuccess(_ *handlers.ControlContext, _ *handlers.Handler, _ *handlers.ControlRequest) *HandlerResult {
	return handlers.NewResult(types.StatusSuccess, nil)
}

// handleGetReparsePoint answers generic reparse queries: mount-point
// markers are managed internally and never exposed as reparse points.
func handleGetReparsePoint(_ *handlers.ControlContext, _ *handlers.Handler, _ *handlers.ControlRequest) *HandlerResult {
	return handlers.NewErrorResult(types.StatusNotAReparsePoint)
}
