// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     version
// Description: Build version information, overridable via -ldflags
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/msto63/kflogs/pkg/version.Version=..."
var (
	Version   = "1.0.0"
	GitCommit = "development"
	BuildDate = "unknown"
)

// Info returns the multi-line version banner
func Info() string {
	return fmt.Sprintf("kflogs v%s\n  Git Commit: %s\n  Build Date: %s\n  Go Version: %s\n  OS/Arch:    %s/%s\n",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
