// Package version carries build metadata stamped in with -ldflags:
//
//	go build -ldflags "-X github.com/awsl-project/billcast/internal/version.Version=1.2.0 \
//	  -X github.com/awsl-project/billcast/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Build is the build metadata of the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

func Get() Build {
	return Build{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// Full returns the one-line form used by --version and the version command.
func Full() string {
	b := Get()
	return b.Version + " (commit: " + b.Commit + ", built: " + b.BuildTime + ", " + b.GoVersion + ")"
}
