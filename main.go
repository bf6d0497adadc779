// Command agentpool runs a generic worker pool coordinator behind a CLI:
// a headless "serve" mode, a live terminal "dashboard", and a one-shot
// "status" query against a running pool.
package main

import (
	"fmt"
	"os"

	"github.com/zjrosen/agentpool/cmd/agentpool"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionString := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	agentpool.SetVersion(versionString)
	if err := agentpool.Execute(); err != nil {
		os.Exit(1)
	}
}
