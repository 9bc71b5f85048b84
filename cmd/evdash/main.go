// evdash - terminal client for the EV charging dashboard lists
package main

import (
	"os"

	"github.com/voltline/evdash/internal/cli"
	"github.com/voltline/evdash/internal/version"
)

// Version information, overridden with -ldflags at release time
var (
	Version   = "v0.3.0-dev"
	BuildTime = "2026-10-17"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
