// Package client implements the RTR client session engine: one Record
// per configured cache, driving the IDLE -> CONNECTED -> AWAIT_RESPONSE
// -> RECEIVING_DELTAS -> COMMIT lifecycle over a single TCP connection.
package client

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/mellowdrifter/rtrsync/internal/state"

	"go.uber.org/zap"
)

// SessionState names where a Record sits in the RTR client lifecycle.
type SessionState int

const (
	Idle SessionState = iota
	Connected
	AwaitResponse
	ReceivingDeltas
	Committed
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connected:
		return "CONNECTED"
	case AwaitResponse:
		return "AWAIT_RESPONSE"
	case ReceivingDeltas:
		return "RECEIVING_DELTAS"
	case Committed:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// Default timer intervals, used until the cache's first EndOfData PDU
// supplies its own. Mirrors the RFC 8210 defaults.
const (
	DefaultRefreshInterval = 3600 * time.Second
	DefaultRetryInterval   = 600 * time.Second
	DefaultExpireInterval  = 7200 * time.Second
)

// Clock abstracts time.Now so the refresh/retry/expire timer gate can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by the time package.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Record is one cache's client session: its connection, its negotiated
// version, its committed state, and the timers that gate when it is next
// due for a refresh.
type Record struct {
	mu sync.Mutex

	ClientID int
	Name     string
	Addr     string

	clock     Clock
	logger    *zap.SugaredLogger
	supported []protocol.Version

	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	version protocol.Version

	state       *state.State
	haveSession bool
	sessionID   uint16
	serial      uint32
	haveEOD     bool

	refreshInterval time.Duration
	retryInterval   time.Duration
	expireInterval  time.Duration

	lastRun       time.Time
	lastFailure   error
	lastFailureAt time.Time

	sessionState SessionState
}

// New returns a Record for one cache, idle and not yet connected.
func New(id int, name, addr string, supported []protocol.Version, logger *zap.SugaredLogger, clock Clock) *Record {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Record{
		ClientID:        id,
		Name:            name,
		Addr:            addr,
		clock:           clock,
		logger:          logger.With("cache", name, "addr", addr),
		supported:       supported,
		refreshInterval: DefaultRefreshInterval,
		retryInterval:   DefaultRetryInterval,
		expireInterval:  DefaultExpireInterval,
	}
}

// State returns a deep copy of the Record's committed state. It is safe
// to call concurrently with Refresh/Reset.
func (r *Record) State() *state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return state.New(0)
	}
	return r.state.Clone()
}

// SessionState reports the Record's current position in the session
// lifecycle.
func (r *Record) SessionState() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionState
}

// Version returns the negotiated protocol version, valid once the Record
// has completed at least one successful episode.
func (r *Record) Version() protocol.Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// LastFailure returns the error from the most recent failed episode, or
// nil if the last episode (if any) committed successfully.
func (r *Record) LastFailure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFailure
}

// Expired reports whether the held State has outlived a failure: a
// refresh must have failed, and expireInterval must have elapsed since
// that failure, with no successful refresh in between.
func (r *Record) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastFailure == nil {
		return false
	}
	return r.clock.Now().Sub(r.lastFailureAt) > r.expireInterval
}

// dueForRefresh implements the timer gate: a failed episode is retried
// retryInterval after the failure itself, a successful one refreshed
// refreshInterval after the last successful run.
func (r *Record) dueForRefresh() bool {
	if r.lastFailure != nil {
		return r.clock.Now().Sub(r.lastFailureAt) >= r.retryInterval
	}
	if r.lastRun.IsZero() {
		return true
	}
	return r.clock.Now().Sub(r.lastRun) >= r.refreshInterval
}

// Close releases the underlying connection, if one is open.
func (r *Record) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.sessionState = Idle
	return err
}
