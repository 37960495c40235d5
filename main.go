package main

import (
	"os"

	"github.com/hotspot-detector/geodetect/cmd"
	"github.com/hotspot-detector/geodetect/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=... -X main.commit=..."
var (
	version   = "dev"
	buildDate = ""
	commit    = ""
)

func main() {
	build := buildinfo.NewContext(version, buildDate, commit)

	if err := cmd.RootCommand(build).Execute(); err != nil {
		os.Exit(1)
	}
}
