package client

import (
	"errors"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/mellowdrifter/rtrsync/internal/state"

	"go.uber.org/zap"
)

// Snapshot captures everything needed to persist a Record across
// process invocations and to restore it later without re-running Init.
type Snapshot struct {
	ClientID          int
	Name              string
	Addr              string
	SupportedVersions []protocol.Version
	CurrentVersion    protocol.Version
	HaveSession       bool
	SessionID         uint16
	Serial            uint32
	State             *state.State
	RefreshInterval   time.Duration
	RetryInterval     time.Duration
	ExpireInterval    time.Duration
	LastRun           time.Time
	LastFailure       string
}

// Snapshot returns a point-in-time copy of r suitable for serialisation.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	lastFailure := ""
	if r.lastFailure != nil {
		lastFailure = r.lastFailure.Error()
	}
	st := r.state
	if st == nil {
		st = state.New(0)
	} else {
		st = st.Clone()
	}

	return Snapshot{
		ClientID:          r.ClientID,
		Name:              r.Name,
		Addr:              r.Addr,
		SupportedVersions: append([]protocol.Version(nil), r.supported...),
		CurrentVersion:    r.version,
		HaveSession:       r.haveSession,
		SessionID:         r.sessionID,
		Serial:            r.serial,
		State:             st,
		RefreshInterval:   r.refreshInterval,
		RetryInterval:     r.retryInterval,
		ExpireInterval:    r.expireInterval,
		LastRun:           r.lastRun,
		LastFailure:       lastFailure,
	}
}

// Restore reconstructs a Record from a Snapshot without contacting the
// cache; the caller must still call Refresh or Reset to resume
// synchronising.
func Restore(snap Snapshot, logger *zap.SugaredLogger, clock Clock) *Record {
	r := New(snap.ClientID, snap.Name, snap.Addr, snap.SupportedVersions, logger, clock)
	r.version = snap.CurrentVersion
	r.haveSession = snap.HaveSession
	r.sessionID = snap.SessionID
	r.serial = snap.Serial
	r.state = snap.State
	if r.state != nil {
		r.haveEOD = true
	}
	r.refreshInterval = snap.RefreshInterval
	r.retryInterval = snap.RetryInterval
	r.expireInterval = snap.ExpireInterval
	r.lastRun = snap.LastRun
	if snap.LastFailure != "" {
		r.lastFailure = errors.New(snap.LastFailure)
		r.lastFailureAt = snap.LastRun
	}
	return r
}
