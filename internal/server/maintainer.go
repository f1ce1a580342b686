package server

import (
	"sync"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/state"
)

// routerKeyChange is one announced Router Key in a delta.
type routerKeyChange struct {
	Key  state.RouterKeyKey
	SPKI []byte
}

// aspaChange is one announced (whole-tuple-replace) ASPA record in a delta.
type aspaChange struct {
	Customer  uint32
	Providers []uint32
}

// delta is a structural, version-agnostic description of what changed
// between two serials. It carries domain keys rather than wire PDUs, so
// the same log entry can be re-encoded at whatever protocol version a
// given client has negotiated.
type delta struct {
	vrpAdd  []state.VRPKey
	vrpDel  []state.VRPKey
	keyAdd  []routerKeyChange
	keyDel  []state.RouterKeyKey
	aspaSet []aspaChange
	aspaDel []uint32
}

func (d delta) empty() bool {
	return len(d.vrpAdd) == 0 && len(d.vrpDel) == 0 &&
		len(d.keyAdd) == 0 && len(d.keyDel) == 0 &&
		len(d.aspaSet) == 0 && len(d.aspaDel) == 0
}

// applyDelta mutates st in place. Withdraws are applied before announces,
// since the protocol requires producers to emit a withdraw before any
// announce that re-instates the same key within one changeset.
func applyDelta(st *state.State, d delta) {
	for _, k := range d.vrpDel {
		if c := st.VRPs[k]; c <= 1 {
			delete(st.VRPs, k)
		} else {
			st.VRPs[k] = c - 1
		}
	}
	for _, c := range d.aspaDel {
		delete(st.ASPAs, c)
	}
	for _, k := range d.keyDel {
		delete(st.RouterKeys, k)
	}
	for _, k := range d.vrpAdd {
		st.VRPs[k]++
	}
	for _, rk := range d.keyAdd {
		st.RouterKeys[rk.Key] = rk.SPKI
	}
	for _, a := range d.aspaSet {
		st.ASPAs[a.Customer] = a.Providers
	}
}

type logEntry struct {
	serial uint32 // the serial produced by applying this entry's delta
	delta  delta
}

// Maintainer holds the authoritative VRP/RouterKey/ASPA set and an
// append-only log of the changesets that produced each serial, bound to
// a session ID assigned once at startup.
type Maintainer struct {
	mu        sync.RWMutex
	sessionID uint16
	current   *state.State
	log       []logEntry
	maxLog    int
}

// NewMaintainer returns a Maintainer at serial 0 with an empty payload
// set, bound to sessionID.
func NewMaintainer(sessionID uint16) *Maintainer {
	return &Maintainer{
		sessionID: sessionID,
		current:   state.New(sessionID),
		maxLog:    4096,
	}
}

// SessionID returns the session this Maintainer was created with.
func (m *Maintainer) SessionID() uint16 {
	return m.sessionID
}

// Serial returns the current serial number.
func (m *Maintainer) Serial() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Serial
}

// Snapshot returns a deep copy of the full current payload set, for a
// ResetQuery reply.
func (m *Maintainer) Snapshot() *state.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Count reports the size of the current payload set.
func (m *Maintainer) Count() (vrps, routerKeys, aspas int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Count()
}

// commit applies d to the current state, bumps the serial, and appends a
// log entry, trimming the oldest entry once maxLog is exceeded. It
// reports false (no-op) for an empty delta, since an empty changeset
// never advances the serial.
func (m *Maintainer) commit(d delta) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.empty() {
		return m.current.Serial, false
	}
	applyDelta(m.current, d)
	m.current.Serial++
	m.log = append(m.log, logEntry{serial: m.current.Serial, delta: d})
	if len(m.log) > m.maxLog {
		m.log = m.log[len(m.log)-m.maxLog:]
	}
	return m.current.Serial, true
}

// AnnounceVRP adds one VRP occurrence and advances the serial.
func (m *Maintainer) AnnounceVRP(key state.VRPKey) (uint32, bool) {
	return m.commit(delta{vrpAdd: []state.VRPKey{key}})
}

// WithdrawVRP removes one VRP occurrence and advances the serial.
func (m *Maintainer) WithdrawVRP(key state.VRPKey) (uint32, bool) {
	return m.commit(delta{vrpDel: []state.VRPKey{key}})
}

// AnnounceRouterKey announces (or replaces) a Router Key and advances
// the serial.
func (m *Maintainer) AnnounceRouterKey(key state.RouterKeyKey, spki []byte) (uint32, bool) {
	return m.commit(delta{keyAdd: []routerKeyChange{{Key: key, SPKI: spki}}})
}

// WithdrawRouterKey withdraws a Router Key and advances the serial.
func (m *Maintainer) WithdrawRouterKey(key state.RouterKeyKey) (uint32, bool) {
	return m.commit(delta{keyDel: []state.RouterKeyKey{key}})
}

// SetASPA replaces the whole provider-authorization tuple for customer
// and advances the serial.
func (m *Maintainer) SetASPA(customer uint32, providers []uint32) (uint32, bool) {
	return m.commit(delta{aspaSet: []aspaChange{{Customer: customer, Providers: providers}}})
}

// WithdrawASPA withdraws customer's provider-authorization tuple and
// advances the serial.
func (m *Maintainer) WithdrawASPA(customer uint32) (uint32, bool) {
	return m.commit(delta{aspaDel: []uint32{customer}})
}

// ReplaceVRPFeed diffs want against the current VRP set (by membership,
// not multiplicity) and commits a single delta covering every add and
// remove, so a full feed refresh advances the serial exactly once.
func (m *Maintainer) ReplaceVRPFeed(want []state.VRPKey) (uint32, bool) {
	m.mu.RLock()
	wantSet := make(map[state.VRPKey]struct{}, len(want))
	for _, k := range want {
		wantSet[k] = struct{}{}
	}
	var d delta
	for k := range wantSet {
		if _, ok := m.current.VRPs[k]; !ok {
			d.vrpAdd = append(d.vrpAdd, k)
		}
	}
	for k := range m.current.VRPs {
		if _, ok := wantSet[k]; !ok {
			d.vrpDel = append(d.vrpDel, k)
		}
	}
	m.mu.RUnlock()
	return m.commit(d)
}

// ReplaySince reports the concatenated deltas strictly after serial, up
// to the current serial. recoverable is false when serial predates what
// the log still retains (or when no log exists at all and serial is not
// already current), meaning the caller must send CacheReset instead.
func (m *Maintainer) ReplaySince(serial uint32) (deltas []delta, current uint32, recoverable bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	current = m.current.Serial
	if serial == current {
		return nil, current, true
	}
	if len(m.log) == 0 {
		return nil, current, false
	}
	// base is the serial the oldest retained log entry was built from;
	// anything older than that has already been trimmed away.
	base := m.log[0].serial - 1
	if serial != base && state.SerialLess(serial, base) {
		return nil, current, false
	}
	for _, e := range m.log {
		if state.SerialLess(serial, e.serial) {
			deltas = append(deltas, e.delta)
		}
	}
	if len(deltas) == 0 {
		return nil, current, false
	}
	return deltas, current, true
}

// newSessionID derives a session ID the same way the teacher does: the
// low 16 bits of the startup time, so restarts get a (likely) different
// session and clients are forced through a full Reset rather than
// silently trusting a stale serial.
func newSessionID() uint16 {
	return uint16(time.Now().Unix() & 0xFFFF)
}
