// Package buildinfo holds version information injected at link time.
package buildinfo

// Set via -ldflags "-X github.com/modoterra/pricewatch/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
