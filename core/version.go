package core

import "strings"

// Build metadata, injected with
//
//	go build -ldflags "-X edgedetect/core.Version=v1.2.0"
//
// with BuildTime and GitCommit set the same way.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ldflagsPackage is the import path used in -X flags.
const ldflagsPackage = "edgedetect/core"

// GetVersionInfo returns "<version> (built <time>, commit <hash>)".
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}

// BuildLdflags returns the -X flags for the non-empty values, in the order
// version, build time, commit.
func BuildLdflags(version, buildTime, gitCommit string) string {
	var flags []string
	for _, kv := range [][2]string{
		{"Version", version},
		{"BuildTime", buildTime},
		{"GitCommit", gitCommit},
	} {
		if kv[1] != "" {
			flags = append(flags, "-X "+ldflagsPackage+"."+kv[0]+"="+kv[1])
		}
	}
	return strings.Join(flags, " ")
}
