// Package types contains file-system control protocol constants, control
// codes, and NT_STATUS error codes.
// Reference: [MS-FSCC] 2.3, [MS-ERREF] 2.3
package types

import "fmt"

// ControlCode identifies a file-system control operation (FSCTL).
type ControlCode uint32

// Control code transfer methods, encoded in the two low bits of a code.
const (
	MethodBuffered  uint32 = 0
	MethodInDirect  uint32 = 1
	MethodOutDirect uint32 = 2
	MethodNeither   uint32 = 3
)

// deviceFileSystem is the device type all FSCTL codes are issued against.
const deviceFileSystem uint32 = 0x00000009

// ctlCode builds a control code the same way the host encodes them:
// device type in bits 16-31, required access in bits 14-15, function
// number in bits 2-13, transfer method in bits 0-1.
func ctlCode(function, method, access uint32) ControlCode {
	return ControlCode(deviceFileSystem<<16 | access<<14 | function<<2 | method)
}

// Standard FSCTL codes [MS-FSCC] 2.3.
const (
	FSCTLRequestOplockLevel1    = ControlCode(0x00090000) // function 0
	FSCTLRequestOplockLevel2    = ControlCode(0x00090004) // function 1
	FSCTLRequestBatchOplock     = ControlCode(0x00090008) // function 2
	FSCTLOplockBreakAcknowledge = ControlCode(0x0009000C) // function 3
	FSCTLOpBatchAckClosePending = ControlCode(0x00090010) // function 4
	FSCTLOplockBreakNotify      = ControlCode(0x00090014) // function 5
	FSCTLLockVolume             = ControlCode(0x00090018) // function 6
	FSCTLUnlockVolume           = ControlCode(0x0009001C) // function 7
	FSCTLIsVolumeMounted        = ControlCode(0x00090028) // function 10
	FSCTLOplockBreakAckNo2      = ControlCode(0x00090050) // function 20
	FSCTLRequestFilterOplock    = ControlCode(0x0009005C) // function 23
	FSCTLSetReparsePoint        = ControlCode(0x000900A4) // function 41
	FSCTLGetReparsePoint        = ControlCode(0x000900A8) // function 42
	FSCTLDeleteReparsePoint     = ControlCode(0x000900AC) // function 43
	FSCTLRequestOplock          = ControlCode(0x00090240) // function 144
)

// Driver-private FSCTL codes, carved out of the customer function range
// (0x800+) so they can never collide with host-defined codes.
var (
	// FSCTLActivateKeepalive designates the issuing handle as the
	// volume's keepalive handle.
	FSCTLActivateKeepalive = ctlCode(0x080A, MethodNeither, 0)

	// FSCTLNotifyPath reports a path change originating from the
	// userspace filesystem so directory-watchers can be completed.
	FSCTLNotifyPath = ctlCode(0x080C, MethodNeither, 0)
)

// Generic oplock request input flags [MS-FSCC] 2.3.70.
const (
	// OplockInputFlagRequest marks the buffer as a new oplock request.
	OplockInputFlagRequest uint32 = 0x00000001

	// OplockInputFlagAck marks the buffer as a break acknowledgement.
	OplockInputFlagAck uint32 = 0x00000002

	// OplockInputFlagCompleteAckOnClose asks for the acknowledgement to be
	// completed when the handle closes instead of immediately.
	OplockInputFlagCompleteAckOnClose uint32 = 0x00000004
)

// Generic oplock cache levels [MS-FSCC] 2.3.70. A request carries a
// combination of these; read-only combinations are "shared" requests.
const (
	OplockLevelCacheRead   uint32 = 0x00000001
	OplockLevelCacheHandle uint32 = 0x00000002
	OplockLevelCacheWrite  uint32 = 0x00000004
)

// ControlCodeName returns a human-readable name for a control code.
func ControlCodeName(code ControlCode) string {
	switch code {
	case FSCTLRequestOplockLevel1:
		return "FSCTL_REQUEST_OPLOCK_LEVEL_1"
	case FSCTLRequestOplockLevel2:
		return "FSCTL_REQUEST_OPLOCK_LEVEL_2"
	case FSCTLRequestBatchOplock:
		return "FSCTL_REQUEST_BATCH_OPLOCK"
	case FSCTLOplockBreakAcknowledge:
		return "FSCTL_OPLOCK_BREAK_ACKNOWLEDGE"
	case FSCTLOpBatchAckClosePending:
		return "FSCTL_OPBATCH_ACK_CLOSE_PENDING"
	case FSCTLOplockBreakNotify:
		return "FSCTL_OPLOCK_BREAK_NOTIFY"
	case FSCTLOplockBreakAckNo2:
		return "FSCTL_OPLOCK_BREAK_ACK_NO_2"
	case FSCTLRequestFilterOplock:
		return "FSCTL_REQUEST_FILTER_OPLOCK"
	case FSCTLRequestOplock:
		return "FSCTL_REQUEST_OPLOCK"
	case FSCTLLockVolume:
		return "FSCTL_LOCK_VOLUME"
	case FSCTLUnlockVolume:
		return "FSCTL_UNLOCK_VOLUME"
	case FSCTLIsVolumeMounted:
		return "FSCTL_IS_VOLUME_MOUNTED"
	case FSCTLSetReparsePoint:
		return "FSCTL_SET_REPARSE_POINT"
	case FSCTLGetReparsePoint:
		return "FSCTL_GET_REPARSE_POINT"
	case FSCTLDeleteReparsePoint:
		return "FSCTL_DELETE_REPARSE_POINT"
	case FSCTLActivateKeepalive:
		return "FSCTL_ACTIVATE_KEEPALIVE"
	case FSCTLNotifyPath:
		return "FSCTL_NOTIFY_PATH"
	default:
		return fmt.Sprintf("FSCTL_0x%08X", uint32(code))
	}
}

func (c ControlCode) String() string {
	return ControlCodeName(c)
}

// IsOplockCode reports whether the code is one of the oplock
// request/acknowledge family handled by the oplock arbitrator.
func IsOplockCode(code ControlCode) bool {
	switch code {
	case FSCTLRequestOplockLevel1, FSCTLRequestOplockLevel2,
		FSCTLRequestBatchOplock, FSCTLRequestFilterOplock,
		FSCTLRequestOplock, FSCTLOplockBreakAcknowledge,
		FSCTLOpBatchAckClosePending, FSCTLOplockBreakNotify,
		FSCTLOplockBreakAckNo2:
		return true
	}
	return false
}
