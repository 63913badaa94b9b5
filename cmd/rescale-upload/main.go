// rescale-upload - concurrent hierarchical uploads to Rescale storage
package main

import (
	"os"

	"github.com/rescale/rescale-upload/internal/cli"
	"github.com/rescale/rescale-upload/internal/version"
)

// Version information, overridden via -ldflags "-X main.Version=... -X main.BuildTime=..."
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
