package version

// Version is the agentforge release version, overridden at link time via
// -ldflags "-X github.com/agentforge-io/agentforge/pkg/version.Version=...".
var Version = "0.1.0-dev"

// Get returns the current version string.
func Get() string {
	return Version
}
