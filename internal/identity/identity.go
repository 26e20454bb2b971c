// Package identity reports the host name and software version used in
// logs and as the MQTT client id.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime/debug"
)

// DefaultVersion is the fallback version string when no metadata is found.
const DefaultVersion = "0.1.0-dev"

// GetHostname returns the system hostname.
func GetHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "amplipi-rfid"
	}
	return h
}

// GetVersion reads the version from ~/.config/amplipi-rfid/metadata.json,
// then from the build info, and falls back to DefaultVersion.
func GetVersion() string {
	return GetVersionFromDir("")
}

// GetVersionFromDir reads metadata.json from dir. If dir is empty the
// default ~/.config/amplipi-rfid path is used.
func GetVersionFromDir(dir string) string {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return buildVersion()
		}
		dir = filepath.Join(home, ".config", "amplipi-rfid")
	}

	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return buildVersion()
	}

	var meta struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &meta); err != nil || meta.Version == "" {
		return buildVersion()
	}
	return meta.Version
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return DefaultVersion
}
