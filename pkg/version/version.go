package version

// Version is set at build time via -ldflags.
var Version = "dev"

// Get returns the current version of the application
func Get() string {
	return Version
}
