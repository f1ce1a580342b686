package main

import (
	"fmt"
	"net"
	"os"

	"github.com/mellowdrifter/rtrsync/internal/client"
	"github.com/mellowdrifter/rtrsync/internal/orchestrator"
	"github.com/mellowdrifter/rtrsync/internal/protocol"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [servers...]",
	Short: "Create and persist a ClientRecord per server, running its initial Reset",
	Long: `init registers one ClientRecord per server argument (host or host:port,
falling back to --port when no port is given), runs a full Reset against
each, and persists the result to statedir. Each record's ID is its
position in the argument list.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(cliCfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("rtrctl: create statedir %s: %w", cliCfg.StateDir, err)
	}

	supported := versionsUpTo(cliCfg.Version)

	o := orchestrator.New(logger, client.SystemClock{}, supported)
	caches := make([]orchestrator.CacheConfig, len(args))
	for i, addr := range args {
		caches[i] = orchestrator.CacheConfig{ID: i, Name: addr, Addr: withDefaultPort(addr, cliCfg.Port)}
	}

	initErr := o.Init(cmd.Context(), caches)

	for _, id := range o.Records() {
		rec, ok := o.Record(id)
		if !ok {
			continue
		}
		if err := saveRecord(cliCfg.StateDir, rec); err != nil {
			return fmt.Errorf("rtrctl: persist client %d: %w", id, err)
		}
		vrps, routerKeys, aspas := rec.State().Count()
		fmt.Printf("client %d (%s): vrps=%d router_keys=%d aspas=%d\n", id, rec.Name, vrps, routerKeys, aspas)
	}

	return initErr
}

// withDefaultPort returns addr unchanged if it already names a port,
// otherwise joins it with defaultPort.
func withDefaultPort(addr, defaultPort string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defaultPort)
}

// versionsUpTo returns the supported-version set this implementation
// offers, capped at max.
func versionsUpTo(max int) []protocol.Version {
	var out []protocol.Version
	for _, v := range protocol.DefaultSupportedVersions {
		if int(v) <= max {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = append(out, protocol.V0)
	}
	return out
}
