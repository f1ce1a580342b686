package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/mellowdrifter/rtrsync/internal/client"

	"github.com/spf13/cobra"
)

var printCmd = &cobra.Command{
	Use:   "print [id]",
	Short: "Print the persisted state of one or every cache",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPrint,
}

func init() {
	rootCmd.AddCommand(printCmd)
}

func runPrint(cmd *cobra.Command, args []string) error {
	o, err := loadOrchestrator(cliCfg.StateDir)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		ids := o.Records()
		sort.Ints(ids)
		if len(ids) == 0 {
			fmt.Println("no persisted caches under", cliCfg.StateDir)
			return nil
		}
		for _, id := range ids {
			rec, ok := o.Record(id)
			if !ok {
				continue
			}
			reportRecord(id, rec)
		}
		return nil
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("rtrctl: invalid cache id %q: %w", args[0], err)
	}
	rec, ok := o.Record(id)
	if !ok {
		return fmt.Errorf("rtrctl: no persisted record for cache %d", id)
	}
	reportRecord(id, rec)
	return nil
}

// reportRecord prints one line of human-readable status for rec,
// shared by print, refresh, and refresh --all.
func reportRecord(id int, rec *client.Record) {
	snap := rec.Snapshot()
	vrps, routerKeys, aspas := rec.State().Count()

	session := "no session"
	if snap.HaveSession {
		session = fmt.Sprintf("session=%d serial=%d", snap.SessionID, snap.Serial)
	}

	status := "ok"
	if snap.LastFailure != "" {
		status = "last failure: " + snap.LastFailure
	}

	fmt.Printf("client %d (%s) %s: state=%s version=%d %s vrps=%d router_keys=%d aspas=%d [%s]\n",
		id, rec.Name, rec.Addr, rec.SessionState(), snap.CurrentVersion, session,
		vrps, routerKeys, aspas, status)
}
