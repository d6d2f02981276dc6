package main

import (
	"fmt"
	"os"

	"github.com/bashhack/gitwatch/internal/config"
)

// Version information - injected at build time
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	versionInfo := config.VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	if err := newRootCmd(versionInfo, AppOptions{}).Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(exitCodeOf(err))
	}
}
