// Package build holds queryrt's build-time version metadata, grounded
// on cmd/tempo/build's version-info conventions referenced from
// cmd/tempo/main.go, but returning a local struct instead of pulling in
// prometheus/prometheus just for its version type.
package build

import "github.com/prometheus/common/version"

// AppName identifies this binary to version.Print and the /buildinfo
// endpoint.
const AppName = "queryrt"

// Info is queryrt's build metadata, populated from the same
// github.com/prometheus/common/version package ldflags-injected globals
// cmd/tempo/main.go's init() sets.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	Branch    string `json:"branch"`
	BuildUser string `json:"buildUser"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// GetVersion returns the current build metadata.
func GetVersion() Info {
	return Info{
		Version:   version.Version,
		Revision:  version.Revision,
		Branch:    version.Branch,
		BuildUser: version.BuildUser,
		BuildDate: version.BuildDate,
		GoVersion: version.GoVersion,
	}
}
