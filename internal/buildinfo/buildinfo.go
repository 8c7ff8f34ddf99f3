// Package buildinfo carries version data stamped in at link time.
package buildinfo

// Set with -ldflags "-X github.com/jasonish/meerkat-desktop/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the build info on one line.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
