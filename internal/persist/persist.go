// Package persist serialises a client.Record's Snapshot to a JSON file
// and back, so the orchestrator can resume synchronisation across
// process restarts without a full Reset.
package persist

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/client"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/mellowdrifter/rtrsync/internal/state"
)

// vrpEntry is one flattened row of state.State.VRPs; map keys cannot
// carry structured types through encoding/json, so the map is flattened
// to a slice on save and rebuilt on load.
type vrpEntry struct {
	ASN       uint32 `json:"asn"`
	Address   string `json:"address"`
	PrefixLen uint8  `json:"prefix_length"`
	MaxLen    uint8  `json:"max_length"`
	Count     int    `json:"count"`
}

type routerKeyEntry struct {
	ASN  uint32 `json:"asn"`
	SKI  string `json:"ski"` // hex
	SPKI []byte `json:"spki"`
}

type aspaEntry struct {
	CustomerASN  uint32   `json:"customer_asn"`
	ProviderASNs []uint32 `json:"provider_asns"`
}

type endOfData struct {
	SessionID uint16 `json:"session_id"`
	Serial    uint32 `json:"serial_number"`
	Refresh   uint32 `json:"refresh_interval"`
	Retry     uint32 `json:"retry_interval"`
	Expire    uint32 `json:"expire_interval"`
}

// clientRecordFile is the on-disk shape of a ClientRecord. Every field
// is emitted exactly once; Load rejects any file carrying a field it
// does not recognize. Load does not detect a known key that appears
// more than once: the last occurrence silently wins.
type clientRecordFile struct {
	Server            string             `json:"server"`
	Port              string             `json:"port"`
	SupportedVersions []protocol.Version `json:"supported_versions"`
	CurrentVersion    protocol.Version   `json:"current_version"`
	HaveSession       bool               `json:"have_session"`
	SessionID         uint16             `json:"session_id"`
	SerialNumber      uint32             `json:"serial_number"`
	VRPs              []vrpEntry         `json:"vrps"`
	RouterKeys        []routerKeyEntry   `json:"router_keys"`
	ASPAs             []aspaEntry        `json:"aspas"`
	EndOfData         *endOfData         `json:"eod,omitempty"`
	LastRun           time.Time          `json:"last_run"`
	LastFailure       string             `json:"last_failure,omitempty"`
}

// Save writes snap to path, via a temp file in the same directory
// renamed into place, so a crash mid-write never leaves a truncated or
// partially-written record on disk.
func Save(path string, snap client.Snapshot) error {
	file := toFile(snap)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".clientrecord-*.tmp")
	if err != nil {
		return fmt.Errorf("persist: create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("persist: rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// Load reads path and reconstructs a client.Snapshot. It does not
// restore a *client.Record directly; callers pass the result to
// client.Restore along with a logger and Clock.
func Load(path string) (client.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return client.Snapshot{}, fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()

	var file clientRecordFile
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return client.Snapshot{}, fmt.Errorf("persist: decode %s: %w", path, err)
	}

	return fromFile(file)
}

func toFile(snap client.Snapshot) clientRecordFile {
	st := snap.State
	if st == nil {
		st = state.New(snap.SessionID)
	}

	server, port := snap.Addr, ""
	if h, p, err := net.SplitHostPort(snap.Addr); err == nil {
		server, port = h, p
	}

	file := clientRecordFile{
		Server:            server,
		Port:              port,
		SupportedVersions: snap.SupportedVersions,
		CurrentVersion:    snap.CurrentVersion,
		HaveSession:       snap.HaveSession,
		SessionID:         snap.SessionID,
		SerialNumber:      snap.Serial,
		LastRun:           snap.LastRun,
		LastFailure:       snap.LastFailure,
	}

	for k, count := range st.VRPs {
		file.VRPs = append(file.VRPs, vrpEntry{
			ASN:       k.ASN,
			Address:   k.Addr.String(),
			PrefixLen: k.PrefixLen,
			MaxLen:    k.MaxLen,
			Count:     count,
		})
	}
	for k, spki := range st.RouterKeys {
		file.RouterKeys = append(file.RouterKeys, routerKeyEntry{
			ASN:  k.ASN,
			SKI:  hex.EncodeToString(k.SKI[:]),
			SPKI: spki,
		})
	}
	for customer, providers := range st.ASPAs {
		file.ASPAs = append(file.ASPAs, aspaEntry{
			CustomerASN:  customer,
			ProviderASNs: providers,
		})
	}
	if snap.HaveSession {
		file.EndOfData = &endOfData{
			SessionID: snap.SessionID,
			Serial:    snap.Serial,
			Refresh:   uint32(snap.RefreshInterval / time.Second),
			Retry:     uint32(snap.RetryInterval / time.Second),
			Expire:    uint32(snap.ExpireInterval / time.Second),
		}
	}
	return file
}

func fromFile(file clientRecordFile) (client.Snapshot, error) {
	st := state.New(file.SessionID)
	st.Serial = file.SerialNumber

	for _, v := range file.VRPs {
		addr, err := netip.ParseAddr(v.Address)
		if err != nil {
			return client.Snapshot{}, fmt.Errorf("persist: vrp address %q: %w", v.Address, err)
		}
		st.VRPs[state.VRPKey{ASN: v.ASN, Addr: addr, PrefixLen: v.PrefixLen, MaxLen: v.MaxLen}] = v.Count
	}
	for _, rk := range file.RouterKeys {
		raw, err := hex.DecodeString(rk.SKI)
		if err != nil || len(raw) != 20 {
			return client.Snapshot{}, fmt.Errorf("persist: router key ski %q: invalid", rk.SKI)
		}
		var ski [20]byte
		copy(ski[:], raw)
		st.RouterKeys[state.RouterKeyKey{ASN: rk.ASN, SKI: ski}] = rk.SPKI
	}
	for _, a := range file.ASPAs {
		st.ASPAs[a.CustomerASN] = a.ProviderASNs
	}

	addr := file.Server
	if file.Port != "" {
		addr = net.JoinHostPort(file.Server, file.Port)
	}

	snap := client.Snapshot{
		Addr:              addr,
		SupportedVersions: file.SupportedVersions,
		CurrentVersion:    file.CurrentVersion,
		HaveSession:       file.HaveSession,
		SessionID:         file.SessionID,
		Serial:            file.SerialNumber,
		State:             st,
		LastRun:           file.LastRun,
		LastFailure:       file.LastFailure,
	}
	if file.EndOfData != nil {
		snap.RefreshInterval = time.Duration(file.EndOfData.Refresh) * time.Second
		snap.RetryInterval = time.Duration(file.EndOfData.Retry) * time.Second
		snap.ExpireInterval = time.Duration(file.EndOfData.Expire) * time.Second
	} else {
		snap.RefreshInterval = client.DefaultRefreshInterval
		snap.RetryInterval = client.DefaultRetryInterval
		snap.ExpireInterval = client.DefaultExpireInterval
	}
	return snap, nil
}
