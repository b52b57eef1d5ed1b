// Package buildinfo carries build-time metadata injected through ldflags. It is kept
// apart from user configuration so settings files never override it.
package buildinfo

import "runtime"

// UnknownValue is reported for metadata the build did not provide.
const UnknownValue = "unknown"

// Context holds the version and build date of the running binary.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// NewContext creates a build context.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String is the one-line form printed by --version.
func (c *Context) String() string {
	return c.GetVersion() + " (built " + c.GetBuildDate() + ", " + runtime.Version() + ")"
}
