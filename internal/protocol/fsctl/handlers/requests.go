package handlers

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
	"github.com/marmos91/ufsd/internal/volume"
)

// ============================================================================
// Control Request
// ============================================================================

// ControlRequest is one file-system control request delivered by the
// host on behalf of an application.
type ControlRequest struct {
	// Code is the FSCTL operation code.
	Code types.ControlCode

	// Input is the request input payload, if any.
	Input []byte

	// OutputBufferLength is the caller's declared output buffer size.
	// The control plane validates it but never fills the buffer itself.
	OutputBufferLength uint32

	// Handle is the originating handle context, resolved by the host
	// from the request's file object.
	Handle *volume.HandleContext

	// delegated flips once ownership of the request has been handed to
	// the oplock engine. The dispatcher must not complete a delegated
	// request; the engine owns its completion.
	delegated bool
}

// Delegated reports whether request ownership was transferred to the
// oplock engine.
func (r *ControlRequest) Delegated() bool {
	return r.delegated
}

// delegate consumes the request and produces the engine-facing oplock
// request. After this call the caller must not complete or otherwise
// touch the request, regardless of the status the engine returns.
func (r *ControlRequest) delegate(level, flags uint32) *OplockRequest {
	r.delegated = true
	return &OplockRequest{
		Code:               r.Code,
		RequestedLevel:     level,
		Flags:              flags,
		OutputBufferLength: r.OutputBufferLength,
		origin:             r,
	}
}

// ============================================================================
// Oplock Engine Boundary
// ============================================================================

// OplockRequest is the request object handed to the oplock engine. It
// carries completion ownership: once built, only the engine may finish
// the originating control request.
type OplockRequest struct {
	Code               types.ControlCode
	RequestedLevel     uint32
	Flags              uint32
	OutputBufferLength uint32

	origin *ControlRequest
}

// OplockEngine is the host's oplock grant/break state machine. The
// control plane computes the conflicting-access count and delegates;
// everything after that (granting, breaking, completing the request) is
// the engine's.
type OplockEngine interface {
	// Fsctrl processes an oplock request or acknowledgement against
	// the node's oplock state, keyed by the opaque handle. oplockCount
	// is the conflicting-access hint: for shared requests, nonzero if
	// byte-range locks would deny the oplock; for exclusive-style
	// requests, the node's open-handle count. The call consumes req.
	Fsctrl(oplock *volume.Oplock, req *OplockRequest, oplockCount uint32) types.Status
}

// ============================================================================
// Generic Oplock Request Payload [MS-FSCC] 2.3.70, 2.3.71
// ============================================================================

// OplockInputBufferSize is the size of the generic oplock request input
// structure.
//
// **Wire Format (12 bytes):**
//
//	Offset  Size  Field                 Description
//	------  ----  --------------------  ----------------------------------
//	0       2     StructureVersion      Always 1
//	2       2     StructureLength       Always 12
//	4       4     RequestedOplockLevel  OPLOCK_LEVEL_CACHE_* combination
//	8       4     Flags                 Request/acknowledge flags
const OplockInputBufferSize = 12

// OplockOutputBufferSize is the minimum output buffer a generic oplock
// request must provide. The buffer is filled by the oplock engine, not
// by this subsystem; only its size is validated here.
const OplockOutputBufferSize = 24

// OplockInputBuffer is the decoded generic oplock request payload.
type OplockInputBuffer struct {
	StructureVersion     uint16
	StructureLength      uint16
	RequestedOplockLevel uint32
	Flags                uint32
}

// DecodeOplockInputBuffer parses a generic oplock request input buffer.
func DecodeOplockInputBuffer(body []byte) (*OplockInputBuffer, error) {
	if len(body) < OplockInputBufferSize {
		return nil, fmt.Errorf("oplock input buffer too short: %d bytes", len(body))
	}

	return &OplockInputBuffer{
		StructureVersion:     binary.LittleEndian.Uint16(body[0:2]),
		StructureLength:      binary.LittleEndian.Uint16(body[2:4]),
		RequestedOplockLevel: binary.LittleEndian.Uint32(body[4:8]),
		Flags:                binary.LittleEndian.Uint32(body[8:12]),
	}, nil
}

// IsSharedRequest reports whether the request asks for a shared
// (read-caching) oplock: a level-2 request, or a generic request whose
// requested level does not include write caching.
func IsSharedRequest(code types.ControlCode, input *OplockInputBuffer) bool {
	switch code {
	case types.FSCTLRequestOplockLevel2:
		return true
	case types.FSCTLRequestOplock:
		if input == nil || input.Flags&types.OplockInputFlagRequest == 0 {
			return false
		}
		return input.RequestedOplockLevel&types.OplockLevelCacheWrite == 0
	}
	return false
}

// ============================================================================
// Path Change Notification Payload
// ============================================================================

// NotifyPathHeaderSize is the fixed header preceding the path buffer.
//
// **Wire Format (10 bytes + variable):**
//
//	Offset  Size  Field             Description
//	------  ----  ----------------  ----------------------------------
//	0       4     CompletionFilter  FILE_NOTIFY_CHANGE_* mask
//	4       4     Action            FILE_ACTION_* code
//	8       2     Length            Path length in bytes
//	10      var   Path              UTF-16LE path, Length bytes
const NotifyPathHeaderSize = 10

// NotifyPathPayload is the decoded path-change notification payload.
type NotifyPathPayload struct {
	CompletionFilter uint32
	Action           uint32
	Path             string
}

// DecodeNotifyPathPayload parses a path-change notification payload.
// The declared path length must fit inside the payload.
func DecodeNotifyPathPayload(body []byte) (*NotifyPathPayload, error) {
	if len(body) < NotifyPathHeaderSize {
		return nil, fmt.Errorf("notify path payload too short: %d bytes", len(body))
	}

	length := binary.LittleEndian.Uint16(body[8:10])
	if length%2 != 0 {
		return nil, fmt.Errorf("notify path length %d is not UTF-16 aligned", length)
	}
	if int(length) > len(body)-NotifyPathHeaderSize {
		return nil, fmt.Errorf("notify path length %d exceeds payload of %d bytes",
			length, len(body)-NotifyPathHeaderSize)
	}

	raw := body[NotifyPathHeaderSize : NotifyPathHeaderSize+int(length)]
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
	}

	return &NotifyPathPayload{
		CompletionFilter: binary.LittleEndian.Uint32(body[0:4]),
		Action:           binary.LittleEndian.Uint32(body[4:8]),
		Path:             string(utf16.Decode(units)),
	}, nil
}

// EncodeNotifyPathPayload builds the wire form of a path-change
// notification. Used by the userspace side and by tests.
func EncodeNotifyPathPayload(p *NotifyPathPayload) []byte {
	units := utf16.Encode([]rune(p.Path))
	buf := make([]byte, NotifyPathHeaderSize+len(units)*2)
	binary.LittleEndian.PutUint32(buf[0:4], p.CompletionFilter)
	binary.LittleEndian.PutUint32(buf[4:8], p.Action)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(units)*2))
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[NotifyPathHeaderSize+i*2:], u)
	}
	return buf
}
