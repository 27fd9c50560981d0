// Package version holds build metadata, overridable via -ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
