// Package version tells which build of patchbay is running.
package version

import (
	"runtime/debug"
	"sync"
)

// Version can be set at build time using something like:
// go build -ldflags "-X github.com/vsariola/patchbay/version.Version=$(git describe --dirty)" ./cmd/patchbay
var Version string

type Info struct {
	Version   string
	Revision  string // short VCS hash, suffixed with -dirty for modified trees
	GoVersion string
}

var buildInfo = sync.OnceValue(func() Info {
	ret := Info{Version: Version}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ret
	}
	ret.GoVersion = info.GoVersion
	modified := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.modified":
			modified = setting.Value == "true"
		case "vcs.revision":
			ret.Revision = setting.Value[:min(7, len(setting.Value))]
		}
	}
	if modified && ret.Revision != "" {
		ret.Revision += "-dirty"
	}
	if ret.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		ret.Version = info.Main.Version
	}
	return ret
})

func Get() Info {
	return buildInfo()
}

// String is the version if known, otherwise the revision.
func (i Info) String() string {
	if i.Version != "" {
		return i.Version
	}
	if i.Revision != "" {
		return i.Revision
	}
	return "unknown"
}
