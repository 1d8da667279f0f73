// Package handlers provides file-system control handlers.
//
// This file implements the oplock request/acknowledge arbitration that
// runs before delegation to the host's oplock engine. Oplocks
// (opportunistic locks) are leases that let a client cache file data and
// metadata until another client needs conflicting access.
package handlers

import (
	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
	"github.com/marmos91/ufsd/internal/volume"
)

// isRequestClassCode reports whether the code is one of the legacy
// oplock request codes. The generic code joins the class through its
// request flag.
func isRequestClassCode(code types.ControlCode) bool {
	switch code {
	case types.FSCTLRequestOplockLevel1, types.FSCTLRequestOplockLevel2,
		types.FSCTLRequestBatchOplock, types.FSCTLRequestFilterOplock:
		return true
	}
	return false
}

// isAcknowledgeClassCode reports whether the code is one of the legacy
// break-acknowledge codes. The generic code joins the class through its
// acknowledge flag.
func isAcknowledgeClassCode(code types.ControlCode) bool {
	switch code {
	case types.FSCTLOplockBreakAcknowledge, types.FSCTLOpBatchAckClosePending,
		types.FSCTLOplockBreakNotify, types.FSCTLOplockBreakAckNo2:
		return true
	}
	return false
}

// RequestOplock arbitrates an oplock request or break acknowledgement.
//
// Request-class operations take the volume lock shared and then the node
// lock exclusive (volume before node, always), and compute the
// conflicting-access hint the engine needs. Acknowledge-class operations
// take only the node lock, shared. The request is then consumed by
// delegation to the oplock engine: whatever status the engine returns,
// the request is no longer ours to complete.
func (h *Handler) RequestOplock(cc *ControlContext, req *ControlRequest) *HandlerResult {
	node := req.Handle.Node()
	vol := node.Volume()

	var input *OplockInputBuffer
	if req.Code == types.FSCTLRequestOplock {
		in, err := DecodeOplockInputBuffer(req.Input)
		if err != nil {
			logger.Debug("malformed generic oplock request",
				logger.KeyNode, node.Name(),
				"error", err)
			return NewErrorResult(types.StatusInvalidParameter)
		}
		if req.OutputBufferLength < OplockOutputBufferSize {
			return NewErrorResult(types.StatusBufferTooSmall)
		}
		input = in
	}

	// An oplock request on a directory must be for a read or
	// read-handle oplock only.
	if node.IsDirectory() &&
		(req.Code != types.FSCTLRequestOplock || !IsSharedRequest(req.Code, input)) {
		logger.Debug("only shared oplocks allowed on directories",
			logger.KeyNode, node.Name(),
			logger.KeyControlCode, req.Code)
		return NewErrorResult(types.StatusInvalidParameter)
	}

	var level, flags uint32
	if input != nil {
		level = input.RequestedOplockLevel
		flags = input.Flags
	}

	isRequest := isRequestClassCode(req.Code) ||
		(input != nil && flags&types.OplockInputFlagRequest != 0)
	isAcknowledge := !isRequest &&
		(isAcknowledgeClassCode(req.Code) ||
			(input != nil && flags&types.OplockInputFlagAck != 0))

	// A generic request carrying neither the request flag nor the
	// acknowledge flag is malformed. Rejected before any lock is taken.
	if !isRequest && !isAcknowledge {
		logger.Debug("oplock request with neither request nor acknowledge flag",
			logger.KeyNode, node.Name(),
			logger.KeyControlCode, req.Code)
		return NewErrorResult(types.StatusInvalidParameter)
	}

	var oplockCount uint32
	if isRequest {
		// Volume before node. The deferred releases run in reverse
		// acquisition order on every exit path below.
		vol.RLock()
		defer vol.RUnlock()
		node.Lock()
		defer node.Unlock()

		if vol.UserModeLocking() {
			oplockCount = computeConflictHint(req.Code, input, node)
		}
		// With host-native locking the engine consults the native lock
		// manager downstream; the hint stays 0.
	} else {
		node.RLock()
		defer node.RUnlock()
	}

	// Batch, filter, and handle-caching requests are pointless on a
	// node about to disappear.
	if deniesDeletePending(req.Code, input) && node.DeletePendingLocked() {
		return NewErrorResult(types.StatusDeletePending)
	}

	if OplockDebugEnabled() {
		node.RecordOplockRequest(req.Code, level, flags)
		logger.Debug("oplock request",
			logger.KeyNode, node.Name(),
			logger.KeyControlCode, req.Code,
			"oplock_count", oplockCount,
			"level", level,
			"flags", flags)
	}

	// Delegation consumes the request: the engine owns its completion
	// from here on, no matter what status comes back.
	op := req.delegate(level, flags)
	status := h.Engine.Fsctrl(node.OplockHandle(), op, oplockCount)

	if h.Metrics != nil {
		h.Metrics.RecordOplock(oplockClassName(isRequest), types.StatusName(status))
	}
	logger.Debug("oplock result",
		logger.KeyNode, node.Name(),
		logger.KeyControlCode, req.Code,
		logger.KeyStatus, status)

	return NewErrorResult(status)
}

// computeConflictHint derives the conflicting-access count passed to the
// oplock engine. For a shared request on a file, the hint is 1 when the
// node's byte-range lock state would deny the oplock; for other request
// kinds it is the node's open-handle count. Callers hold the node lock.
func computeConflictHint(code types.ControlCode, input *OplockInputBuffer, node *volume.Node) uint32 {
	if IsSharedRequest(code, input) {
		// Byte-range locks are only valid on files.
		if node.IsDirectory() {
			return 0
		}
		if lt := node.LockTable(); lt != nil && lt.BlocksOplockRequest() {
			return 1
		}
		return 0
	}
	return uint32(node.HandleCountLocked())
}

// deniesDeletePending reports whether the request kind is refused on a
// delete-pending node: batch, filter, and generic requests asking for
// handle caching.
func deniesDeletePending(code types.ControlCode, input *OplockInputBuffer) bool {
	switch code {
	case types.FSCTLRequestBatchOplock, types.FSCTLRequestFilterOplock:
		return true
	case types.FSCTLRequestOplock:
		return input != nil && input.RequestedOplockLevel&types.OplockLevelCacheHandle != 0
	}
	return false
}

func oplockClassName(isRequest bool) string {
	if isRequest {
		return "request"
	}
	return "acknowledge"
}
