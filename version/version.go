package version

import (
	"runtime"
)

// VERSION is set at build time with -ldflags "-X github.com/mumoshu/launchpad/version.VERSION=..."
var VERSION = "dev"

type Version struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func Get() Version {
	return Version{
		Version:   VERSION,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
