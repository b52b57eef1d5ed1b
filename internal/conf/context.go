package conf

import "github.com/sonoscan/sonoscan/internal/buildinfo"

// Context is shared by the CLI commands. Settings is filled in once the root command
// has loaded the configuration.
type Context struct {
	Settings *Settings
	Build    *buildinfo.Context
}

// NewContext creates a command context for the given build.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}
