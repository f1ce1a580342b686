package persist

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/client"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/mellowdrifter/rtrsync/internal/state"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot(t *testing.T) client.Snapshot {
	st := state.New(42)
	st.Serial = 7
	st.VRPs[state.VRPKey{ASN: 64512, Addr: netip.MustParseAddr("10.0.0.0"), PrefixLen: 24, MaxLen: 32}] = 1
	var ski [20]byte
	ski[0] = 9
	st.RouterKeys[state.RouterKeyKey{ASN: 64512, SKI: ski}] = []byte{1, 2, 3}
	st.ASPAs[4708] = []uint32{10, 20, 30}

	return client.Snapshot{
		ClientID:          1,
		Name:              "cache-a",
		Addr:              "rtr.example.net:323",
		SupportedVersions: []protocol.Version{protocol.V1, protocol.V2},
		CurrentVersion:    protocol.V2,
		HaveSession:       true,
		SessionID:         42,
		Serial:            7,
		State:             st,
		RefreshInterval:   3600 * time.Second,
		RetryInterval:     600 * time.Second,
		ExpireInterval:    7200 * time.Second,
		LastRun:           time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC),
		LastFailure:       "",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client1.json")

	snap := sampleSnapshot(t)
	require.NoError(t, Save(path, snap))

	got, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, snap.Addr, got.Addr)
	require.Equal(t, snap.SessionID, got.SessionID)
	require.Equal(t, snap.Serial, got.Serial)
	require.Equal(t, snap.CurrentVersion, got.CurrentVersion)
	require.Equal(t, snap.SupportedVersions, got.SupportedVersions)
	require.Equal(t, snap.RefreshInterval, got.RefreshInterval)
	require.Equal(t, snap.RetryInterval, got.RetryInterval)
	require.Equal(t, snap.ExpireInterval, got.ExpireInterval)
	require.True(t, snap.LastRun.Equal(got.LastRun))

	vrps, routerKeys, aspas := got.State.Count()
	require.Equal(t, 1, vrps)
	require.Equal(t, 1, routerKeys)
	require.Equal(t, 1, aspas)
	require.Equal(t, []uint32{10, 20, 30}, got.State.ASPAs[4708])

	for k, count := range snap.State.VRPs {
		require.Equal(t, count, got.State.VRPs[k])
	}
	for k, spki := range snap.State.RouterKeys {
		require.Equal(t, spki, got.State.RouterKeys[k])
	}
}

func TestSaveLoadRoundTripNoSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client2.json")

	snap := sampleSnapshot(t)
	snap.HaveSession = false
	snap.LastFailure = "client: i/o error: dial rtr.example.net:323: connection refused"
	require.NoError(t, Save(path, snap))

	got, err := Load(path)
	require.NoError(t, err)

	require.False(t, got.HaveSession)
	require.Equal(t, snap.LastFailure, got.LastFailure)
	// No eod block was written, so defaults are restored.
	require.Equal(t, client.DefaultRefreshInterval, got.RefreshInterval)
	require.Equal(t, client.DefaultRetryInterval, got.RetryInterval)
	require.Equal(t, client.DefaultExpireInterval, got.ExpireInterval)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":"x","bogus_field":true}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedVRPAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badaddr.json")
	body := `{
		"server": "x",
		"port": "323",
		"supported_versions": [1],
		"current_version": 1,
		"have_session": true,
		"session_id": 1,
		"serial_number": 1,
		"vrps": [{"asn": 1, "address": "not-an-ip", "prefix_length": 24, "max_length": 24, "count": 1}],
		"router_keys": [],
		"aspas": [],
		"last_run": "2026-01-01T00:00:00Z"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveIsAtomicAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client1.json")

	require.NoError(t, Save(path, sampleSnapshot(t)))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "client1.json", entries[0].Name())
}

func TestSaveSplitsServerAndPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client1.json")

	require.NoError(t, Save(path, sampleSnapshot(t)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"server": "rtr.example.net"`)
	require.Contains(t, string(data), `"port": "323"`)
}
