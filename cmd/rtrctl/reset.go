package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Force a full resynchronisation of one persisted cache",
	Long: `reset issues a ResetQuery against the cache identified by id,
replacing its held state entirely, and persists the result.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("rtrctl: invalid cache id %q: %w", args[0], err)
	}

	o, err := loadOrchestrator(cliCfg.StateDir)
	if err != nil {
		return err
	}
	rec, ok := o.Record(id)
	if !ok {
		return fmt.Errorf("rtrctl: no persisted record for cache %d", id)
	}

	resetErr := o.Reset(cmd.Context(), id)
	if err := saveRecord(cliCfg.StateDir, rec); err != nil {
		return fmt.Errorf("rtrctl: persist client %d: %w", id, err)
	}
	if resetErr != nil {
		return fmt.Errorf("rtrctl: reset cache %d: %w", id, resetErr)
	}

	vrps, routerKeys, aspas := rec.State().Count()
	fmt.Printf("client %d (%s): vrps=%d router_keys=%d aspas=%d serial=%d\n",
		id, rec.Name, vrps, routerKeys, aspas, rec.Snapshot().Serial)
	return nil
}
