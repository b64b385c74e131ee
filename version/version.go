// Package version reports what this monodash binary was built from, using
// the module and VCS metadata the Go toolchain stamps into the binary.
package version

import (
	"runtime/debug"
)

// modulePath is the module this binary is built from.
const modulePath = "github.com/notaproblemdotdev/monodash"

// Info describes the running build. Dependencies maps module paths to the
// resolved versions; a replaced module reports the replacement as
// "path@version".
type Info struct {
	Version      string            `json:"version"`
	GoVersion    string            `json:"goVersion"`
	Revision     string            `json:"revision,omitempty"`
	Modified     bool              `json:"modified,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

// Get assembles the build description for the running binary. Binaries
// built without module metadata (rare outside of tests) report "unknown"
// fields and an empty dependency map.
func Get() Info {
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return Info{
			Version:      "unknown",
			GoVersion:    "unknown",
			Dependencies: map[string]string{},
		}
	}

	info := Info{
		Version:      moduleVersion(build),
		GoVersion:    build.GoVersion,
		Dependencies: make(map[string]string, len(build.Deps)),
	}

	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.Revision = setting.Value
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}

	for _, dep := range build.Deps {
		if dep.Replace != nil {
			info.Dependencies[dep.Path] = dep.Replace.Path + "@" + dep.Replace.Version
			continue
		}
		info.Dependencies[dep.Path] = dep.Version
	}

	return info
}

// Short returns just the module version, for the CLI --version flag.
func Short() string {
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return moduleVersion(build)
}

// moduleVersion resolves the monodash version whether the binary is built
// from the module itself or from something that depends on it. Source
// builds without a stamped version report "dev".
func moduleVersion(build *debug.BuildInfo) string {
	if build.Main.Path == modulePath {
		if build.Main.Version == "" || build.Main.Version == "(devel)" {
			return "dev"
		}
		return build.Main.Version
	}

	for _, dep := range build.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
	}
	return "unknown"
}
