package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetReportsRuntime(t *testing.T) {
	info := Get()
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestStringIncludesBuildFields(t *testing.T) {
	saved := Version
	Version = "1.2.3"
	defer func() { Version = saved }()

	s := String()
	for _, want := range []string{"ntv2node 1.2.3", "commit " + GitCommit, runtime.Version()} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
