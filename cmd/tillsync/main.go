package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bft-labs/tillsync/internal/cliconfig"
	"github.com/bft-labs/tillsync/pkg/log"
)

const helpDescription = `
Keep the till ringing when the network drops.

tillsync sits between a point-of-sale client and its backend. Sales that
cannot reach the backend are written to a durable local queue and replayed
in order once connectivity returns. Entries the backend rejects are parked
for an operator to retry or discard.

Highlights:
  - Queue survives restarts (file or sqlite backend).
  - One replay at a time, oldest first, stopping at the first rejection.
  - Operator API and Prometheus metrics on a local port.
`

var exampleUsage = strings.TrimSpace(`
  tillsync run --gateway-url https://pos.example.com --store-dir /var/lib/tillsync
  tillsync status -o yaml
  tillsync list --status failed
  tillsync retry 9b1f0e6c-...
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	root := &cobra.Command{
		Use:           "tillsync",
		Short:         "Offline-first sale queue and sync daemon for POS terminals",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCommand(),
		newStatusCommand(),
		newListCommand(),
		newRetryCommand(),
		newDiscardCommand(),
	)

	if err := root.Execute(); err != nil {
		logger := log.NewZerologAdapter(log.Options{})
		logger.Error("tillsync", log.Err(err))
		os.Exit(1)
	}
}

// defaultAddr is the operator API address client commands talk to.
func defaultAddr() string {
	if v := os.Getenv("TILLSYNC_LISTEN_ADDR"); v != "" {
		return v
	}
	return cliconfig.DefaultListenAddr
}
