package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	refreshForce bool
	refreshAll   bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [id]",
	Short: "Incrementally resynchronise one or every persisted cache",
	Long: `refresh issues a SerialQuery against the cache identified by id, or
against every persisted cache with --all. --force bypasses the
refresh-interval timer gate and refreshes even if not yet due.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "Refresh even if the refresh interval has not elapsed")
	refreshCmd.Flags().BoolVar(&refreshAll, "all", false, "Refresh every persisted cache")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if refreshAll == (len(args) == 1) {
		return fmt.Errorf("rtrctl: refresh takes exactly one of a cache id or --all")
	}

	o, err := loadOrchestrator(cliCfg.StateDir)
	if err != nil {
		return err
	}

	if refreshAll {
		errs := o.RefreshAll(cmd.Context(), refreshForce)
		ids := o.Records()
		sort.Ints(ids)
		for _, id := range ids {
			rec, ok := o.Record(id)
			if !ok {
				continue
			}
			if err := saveRecord(cliCfg.StateDir, rec); err != nil {
				return fmt.Errorf("rtrctl: persist client %d: %w", id, err)
			}
			reportRecord(id, rec)
		}
		if len(errs) > 0 {
			for id, err := range errs {
				fmt.Printf("client %d: refresh failed: %v\n", id, err)
			}
			return fmt.Errorf("rtrctl: %d of %d caches failed to refresh", len(errs), len(ids))
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

	refreshErr := o.Refresh(cmd.Context(), id, refreshForce)
	if err := saveRecord(cliCfg.StateDir, rec); err != nil {
		return fmt.Errorf("rtrctl: persist client %d: %w", id, err)
	}
	if refreshErr != nil {
		return fmt.Errorf("rtrctl: refresh cache %d: %w", id, refreshErr)
	}
	reportRecord(id, rec)
	return nil
}
