package main

import (
	"fmt"
	"os"

	"github.com/sonoscan/sonoscan/cmd"
	"github.com/sonoscan/sonoscan/internal/buildinfo"
	"github.com/sonoscan/sonoscan/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	ctx := conf.NewContext(buildinfo.NewContext(version, buildDate))

	if err := cmd.RootCommand(ctx).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
