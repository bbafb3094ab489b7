// Package buildinfo holds version values stamped in with -ldflags -X.
package buildinfo

// Empty for local builds.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)
