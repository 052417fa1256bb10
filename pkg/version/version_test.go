package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	for _, want := range []string{"duplexd version", "dev", "unknown", runtime.Version()} {
		if !strings.Contains(info, want) {
			t.Errorf("version info %q missing %q", info, want)
		}
	}
}

func TestGetVersionInfo_BuildOverrides(t *testing.T) {
	origVersion, origCommit, origBuild := Version, GitCommit, BuildTime
	defer func() {
		Version, GitCommit, BuildTime = origVersion, origCommit, origBuild
	}()

	Version = "v1.2.0"
	GitCommit = "abc123"
	BuildTime = "2026-08-28T00:00:00Z"

	info := GetVersionInfo()
	for _, want := range []string{"v1.2.0", "abc123", "2026-08-28T00:00:00Z"} {
		if !strings.Contains(info, want) {
			t.Errorf("version info %q missing %q", info, want)
		}
	}
}
