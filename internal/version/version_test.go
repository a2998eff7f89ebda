package version

import (
	"strings"
	"testing"
)

func TestFull(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	got := Full()
	if !strings.HasPrefix(got, "1.2.3 (commit: ") {
		t.Errorf("Full() = %q", got)
	}
	if b := Get(); b.GoVersion == "" {
		t.Error("Get().GoVersion is empty")
	}
}
