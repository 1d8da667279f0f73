// Package reparse builds the binary mount-point markers that expose a
// volume at a path-based mount point, and relays them to the target
// directory.
package reparse

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf16"
)

// TagMountPoint is the reparse tag identifying a mount-point
// redirection record (IO_REPARSE_TAG_MOUNT_POINT, [MS-FSCC] 2.1.2.1).
const TagMountPoint = 0xA0000003

// Marker header sizes.
//
//	generic header:  ReparseTag(4) + ReparseDataLength(2) + Reserved(2)
//	mount point:     SubstituteNameOffset(2) + SubstituteNameLength(2) +
//	                 PrintNameOffset(2) + PrintNameLength(2)
//	removal header:  generic header + Reserved GUID(16)
const (
	genericHeaderSize    = 8
	mountPointHeaderSize = 8
	removalMarkerSize    = genericHeaderSize + 16
)

// BuildMountPointMarker fills a mount-point redirection buffer for the
// given target path. The substitute name carries the target with a
// trailing separator appended; the print name is left empty.
//
// Layout ([MS-FSCC] 2.1.2.2):
//
//	Offset  Size  Field
//	0       4     ReparseTag
//	4       2     ReparseDataLength
//	6       2     Reserved
//	8       2     SubstituteNameOffset
//	10      2     SubstituteNameLength
//	12      2     PrintNameOffset
//	14      2     PrintNameLength
//	16      var   PathBuffer
//
// Returns nil and zero length when the encoded path cannot fit the
// 16-bit length fields.
func BuildMountPointMarker(targetPath string) ([]byte, int) {
	if !strings.HasSuffix(targetPath, `\`) {
		targetPath += `\`
	}

	substitute := utf16.Encode([]rune(targetPath))
	substituteLen := len(substitute) * 2

	// Substitute name, its terminator, and an empty terminated print
	// name share the path buffer.
	pathBufLen := substituteLen + 2 + 2
	dataLen := mountPointHeaderSize + pathBufLen
	if dataLen > math.MaxUint16 {
		return nil, 0
	}

	buf := make([]byte, genericHeaderSize+dataLen)
	binary.LittleEndian.PutUint32(buf[0:4], TagMountPoint)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(dataLen))
	binary.LittleEndian.PutUint16(buf[8:10], 0)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(substituteLen))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(substituteLen+2))
	binary.LittleEndian.PutUint16(buf[14:16], 0)

	off := genericHeaderSize + mountPointHeaderSize
	for _, u := range substitute {
		binary.LittleEndian.PutUint16(buf[off:off+2], u)
		off += 2
	}

	return buf, len(buf)
}

// BuildRemovalMarker fills a header-only buffer carrying the mount
// point tag, used to delete a previously set marker. The removal form
// uses the GUID header size so both tagged and GUID-tagged markers are
// matched.
func BuildRemovalMarker() ([]byte, int) {
	buf := make([]byte, removalMarkerSize)
	binary.LittleEndian.PutUint32(buf[0:4], TagMountPoint)
	return buf, len(buf)
}
