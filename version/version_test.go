package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFillFromBuildInfo(t *testing.T) {
	info := Info{Version: "dev"}
	fillFromBuildInfo(&info, &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2024-05-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	if info.Version != "v1.2.3" {
		t.Errorf("Version = %q, want v1.2.3", info.Version)
	}
	if info.BuildDate != "2024-05-01T12:00:00Z" {
		t.Errorf("BuildDate = %q", info.BuildDate)
	}
	if got := info.Short(); got != "v1.2.3 (0123456789ab-dirty)" {
		t.Errorf("Short() = %q", got)
	}
}

func TestFillFromBuildInfoKeepsLinkerValues(t *testing.T) {
	info := Info{Version: "v2.0.0", Commit: "abc"}
	fillFromBuildInfo(&info, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "def"}},
	})
	if info.Version != "v2.0.0" || info.Commit != "abc" {
		t.Errorf("linker values overwritten: %+v", info)
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.GoVersion == "" || info.Platform == "" || info.Commit == "" {
		t.Errorf("incomplete info: %+v", info)
	}
	if !strings.Contains(info.String(), "Platform:") {
		t.Errorf("String() missing platform: %s", info.String())
	}
}
