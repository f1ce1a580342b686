package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mellowdrifter/rtrsync/internal/client"
	"github.com/mellowdrifter/rtrsync/internal/orchestrator"
	"github.com/mellowdrifter/rtrsync/internal/persist"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
)

func recordPath(statedir string, id int) string {
	return filepath.Join(statedir, fmt.Sprintf("client%d.json", id))
}

// loadOrchestrator builds an Orchestrator from every clientN.json file
// found in statedir, restoring each without contacting its cache.
func loadOrchestrator(statedir string) (*orchestrator.Orchestrator, error) {
	o := orchestrator.New(logger, client.SystemClock{}, protocol.DefaultSupportedVersions)

	matches, err := filepath.Glob(filepath.Join(statedir, "client*.json"))
	if err != nil {
		return nil, fmt.Errorf("rtrctl: scan %s: %w", statedir, err)
	}

	for _, path := range matches {
		id, ok := idFromPath(path)
		if !ok {
			continue
		}
		snap, err := persist.Load(path)
		if err != nil {
			return nil, fmt.Errorf("rtrctl: load %s: %w", path, err)
		}
		snap.ClientID = id
		o.Restore(client.Restore(snap, logger, client.SystemClock{}))
	}

	return o, nil
}

func idFromPath(path string) (int, bool) {
	name := filepath.Base(path)
	name = strings.TrimPrefix(name, "client")
	name = strings.TrimSuffix(name, ".json")
	id, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return id, true
}

func saveRecord(statedir string, rec *client.Record) error {
	return persist.Save(recordPath(statedir, rec.ClientID), rec.Snapshot())
}
