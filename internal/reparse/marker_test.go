package reparse

import (
	"encoding/binary"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeUTF16LE(t *testing.T, b []byte) string {
	t.Helper()
	require.Zero(t, len(b)%2)
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

func TestBuildMountPointMarker(t *testing.T) {
	buf, n := BuildMountPointMarker(`\??\Volume{1}`)
	require.NotNil(t, buf)
	require.Equal(t, len(buf), n)

	tag := binary.LittleEndian.Uint32(buf[0:4])
	assert.Equal(t, uint32(TagMountPoint), tag)

	dataLen := binary.LittleEndian.Uint16(buf[4:6])
	assert.Equal(t, int(dataLen), len(buf)-genericHeaderSize)

	subOffset := binary.LittleEndian.Uint16(buf[8:10])
	subLen := binary.LittleEndian.Uint16(buf[10:12])
	printOffset := binary.LittleEndian.Uint16(buf[12:14])
	printLen := binary.LittleEndian.Uint16(buf[14:16])

	assert.Equal(t, uint16(0), subOffset)
	assert.Equal(t, uint16(0), printLen)
	assert.Equal(t, subLen+2, printOffset, "print name sits after the terminated substitute name")

	pathBuf := buf[genericHeaderSize+mountPointHeaderSize:]
	substitute := decodeUTF16LE(t, pathBuf[subOffset:subOffset+subLen])
	assert.Equal(t, `\??\Volume{1}\`, substitute, "substitute name carries a trailing separator")
}

func TestBuildMountPointMarker_KeepsExistingSeparator(t *testing.T) {
	buf, _ := BuildMountPointMarker(`\??\Volume{1}\`)
	require.NotNil(t, buf)

	subLen := binary.LittleEndian.Uint16(buf[10:12])
	pathBuf := buf[genericHeaderSize+mountPointHeaderSize:]
	substitute := decodeUTF16LE(t, pathBuf[:subLen])
	assert.Equal(t, `\??\Volume{1}\`, substitute)
}

func TestBuildMountPointMarker_PathTooLong(t *testing.T) {
	buf, n := BuildMountPointMarker(`\` + strings.Repeat("x", 40000))
	assert.Nil(t, buf)
	assert.Zero(t, n)
}

func TestBuildRemovalMarker(t *testing.T) {
	buf, n := BuildRemovalMarker()
	require.Equal(t, removalMarkerSize, n)
	require.Len(t, buf, removalMarkerSize)

	assert.Equal(t, uint32(TagMountPoint), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(buf[4:6]), "removal marker carries no data")
}
