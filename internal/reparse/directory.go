package reparse

import (
	"fmt"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

// DirectoryHandle is an open directory accepting control calls.
type DirectoryHandle interface {
	Control(code types.ControlCode, input []byte) error
	Close() error
}

// DirectoryControl opens directories for marker maintenance. Opens use
// backup-intent semantics so the marker can be set on directories the
// caller could not otherwise traverse.
type DirectoryControl interface {
	OpenBackupIntent(path string) (DirectoryHandle, error)
}

// SendDirectoryControl opens path, relays one control call carrying
// the given buffer, and releases the handle regardless of outcome.
// Failures are logged with the resolved path and returned.
func SendDirectoryControl(dc DirectoryControl, path string, code types.ControlCode, buffer []byte) error {
	h, err := dc.OpenBackupIntent(path)
	if err != nil {
		logger.Error("opening directory for control call failed",
			logger.KeyPath, path,
			logger.KeyControlCode, types.ControlCodeName(code),
			"error", err)
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			logger.Warn("closing directory handle failed",
				logger.KeyPath, path,
				"error", cerr)
		}
	}()

	if err := h.Control(code, buffer); err != nil {
		logger.Error("directory control call failed",
			logger.KeyPath, path,
			logger.KeyControlCode, types.ControlCodeName(code),
			"error", err)
		return fmt.Errorf("control %s on %s: %w", types.ControlCodeName(code), path, err)
	}
	return nil
}
