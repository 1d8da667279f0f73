package types

import "fmt"

// Status is an NT_STATUS code returned to the host for a control request.
// Reference: [MS-ERREF] 2.3
type Status uint32

const (
	StatusSuccess               Status = 0x00000000
	StatusPending               Status = 0x00000103
	StatusInvalidParameter      Status = 0xC000000D
	StatusInvalidDeviceRequest  Status = 0xC0000010
	StatusBufferTooSmall        Status = 0xC0000023
	StatusObjectNameInvalid     Status = 0xC0000033
	StatusDeletePending         Status = 0xC0000056
	StatusInsufficientResources Status = 0xC000009A
	StatusUnrecognizedVolume    Status = 0xC000014F
	StatusNotAReparsePoint      Status = 0xC0000275
	StatusDeviceRemoved         Status = 0xC00002B6
)

// StatusName returns a human-readable name for NT_STATUS codes
func StatusName(status Status) string {
	switch status {
	case StatusSuccess:
		return "STATUS_SUCCESS"
	case StatusPending:
		return "STATUS_PENDING"
	case StatusInvalidParameter:
		return "STATUS_INVALID_PARAMETER"
	case StatusInvalidDeviceRequest:
		return "STATUS_INVALID_DEVICE_REQUEST"
	case StatusBufferTooSmall:
		return "STATUS_BUFFER_TOO_SMALL"
	case StatusObjectNameInvalid:
		return "STATUS_OBJECT_NAME_INVALID"
	case StatusDeletePending:
		return "STATUS_DELETE_PENDING"
	case StatusInsufficientResources:
		return "STATUS_INSUFFICIENT_RESOURCES"
	case StatusUnrecognizedVolume:
		return "STATUS_UNRECOGNIZED_VOLUME"
	case StatusNotAReparsePoint:
		return "STATUS_NOT_A_REPARSE_POINT"
	case StatusDeviceRemoved:
		return "STATUS_DEVICE_REMOVED"
	default:
		return fmt.Sprintf("STATUS_0x%08X", uint32(status))
	}
}

func (s Status) String() string {
	return StatusName(s)
}

// IsSuccess returns true if the status indicates success
func (s Status) IsSuccess() bool {
	// NT_STATUS success codes have the high bit clear
	return (uint32(s) & 0x80000000) == 0
}

// IsError returns true if the status indicates an error
func (s Status) IsError() bool {
	// NT_STATUS error codes have the two high bits set (0xC0000000)
	return (uint32(s) & 0xC0000000) == 0xC0000000
}
