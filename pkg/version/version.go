// Package version holds build information for amanrag.
package version

import (
	"fmt"
	"runtime"
)

// Name is the program name used in version output and the MCP handshake.
const Name = "amanrag"

// Build information, set with -ldflags "-X github.com/Aman-CERP/amanrag/pkg/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"

	// GoVersion is the toolchain that built the binary.
	GoVersion = runtime.Version()
)

// BuildInfo is the JSON form of the build information.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns a one-line version string with all build info.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s, %s/%s)",
		Name, Version, Commit, Date, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
