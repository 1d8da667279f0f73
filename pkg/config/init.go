package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the annotated configuration written by `ufsd init`.
const sampleConfig = `# UFSD Configuration File
#
# All options can be overridden with environment variables:
#   UFSD_<SECTION>_<KEY>, e.g. UFSD_LOGGING_LEVEL=DEBUG

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Output format: text or json
  format: text
  # Destination: stdout, stderr, or a file path
  output: stdout

metrics:
  # Prometheus metrics endpoint (disabled by default)
  enabled: false
  port: 9090

mount:
  # Drive letter ("G:") or directory path to surface the volume at
  mount_point: 'M:\'
  # Volume label (built-in default when omitted)
  # label: UFSD
  # Liveness window the client's keepalive handle must refresh
  keepalive_timeout: 15s
  # Nonzero enables background node collection at this interval
  gc_interval: 0s
  # Network volume: registers a UNC provider and applies a security
  # descriptor to the device
  network: false
  # unc_name: '\\ufsd\share'
  # Delegate byte-range locking to the userspace filesystem
  user_mode_locking: false

oplock:
  # Log per-node oplock request bookkeeping
  debug_log: false

shutdown_timeout: 30s
`

// InitConfig creates a sample configuration file at the default
// location and returns its path. With force false an existing file is
// preserved and an error returned.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given
// path, creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
