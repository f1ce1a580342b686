// Package state holds the authoritative per-cache payload set: VRPs,
// Router Keys and ASPAs, plus the session-ID/serial-number cursor that
// identifies where in a cache's changeset log this snapshot sits.
package state

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/mellowdrifter/rtrsync/internal/changeset"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
)

// ErrWithdrawNotFound is returned when a withdraw PDU names an entry the
// State does not currently hold.
var ErrWithdrawNotFound = errors.New("state: withdraw for entry not found")

// ErrMergeConflict is returned by Merge when two States disagree on the
// SPKI for the same (asn, ski) Router Key.
var ErrMergeConflict = errors.New("state: conflicting router key on merge")

// VRPKey identifies one validated ROA payload entry.
type VRPKey struct {
	ASN       uint32
	Addr      netip.Addr
	PrefixLen uint8
	MaxLen    uint8
}

// RouterKeyKey identifies one BGPsec router key entry.
type RouterKeyKey struct {
	ASN uint32
	SKI [20]byte
}

// State is the mutable payload set for one RTR cache.
type State struct {
	VRPs       map[VRPKey]int
	RouterKeys map[RouterKeyKey][]byte
	ASPAs      map[uint32][]uint32
	SessionID  uint16
	Serial     uint32
}

// New returns an empty State bound to the given session.
func New(sessionID uint16) *State {
	return &State{
		VRPs:       make(map[VRPKey]int),
		RouterKeys: make(map[RouterKeyKey][]byte),
		ASPAs:      make(map[uint32][]uint32),
		SessionID:  sessionID,
	}
}

// SerialLess implements the RFC 1982 32-bit serial number comparison:
// a < b iff 0 < (b-a) mod 2^32 < 2^31.
func SerialLess(a, b uint32) bool {
	d := b - a
	return d != 0 && d < 1<<31
}

// Apply mutates s according to every PDU in cs, in arrival order. On the
// first error the State may be partially mutated; callers must discard
// the whole State (or have taken a copy) before calling Apply, since the
// protocol guarantees a Changeset is only ever applied once, atomically,
// immediately before the caller commits it as the new State.
func (s *State) Apply(cs *changeset.Changeset) error {
	for _, pdu := range cs.PDUs() {
		if err := s.applyOne(pdu); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) applyOne(pdu protocol.PDU) error {
	switch p := pdu.(type) {
	case *protocol.Ipv4PrefixPDU:
		return s.applyVRP(VRPKey{
			ASN:       p.ASN(),
			Addr:      netip.AddrFrom4(p.Prefix()),
			PrefixLen: p.MinLen(),
			MaxLen:    p.MaxLen(),
		}, p.Flags())

	case *protocol.Ipv6PrefixPDU:
		return s.applyVRP(VRPKey{
			ASN:       p.ASN(),
			Addr:      netip.AddrFrom16(p.Prefix()),
			PrefixLen: p.MinLen(),
			MaxLen:    p.MaxLen(),
		}, p.Flags())

	case *protocol.RouterKeyPDU:
		return s.applyRouterKey(p)

	case *protocol.AspaPDU:
		return s.applyASPA(p)

	default:
		return fmt.Errorf("state: %s is not a payload PDU", pdu.Type())
	}
}

func (s *State) applyVRP(key VRPKey, flags uint8) error {
	if flags&1 == protocol.Announce {
		s.VRPs[key]++
		return nil
	}
	count, ok := s.VRPs[key]
	if !ok || count == 0 {
		return fmt.Errorf("%w: vrp %+v", ErrWithdrawNotFound, key)
	}
	if count == 1 {
		delete(s.VRPs, key)
	} else {
		s.VRPs[key] = count - 1
	}
	return nil
}

func (s *State) applyRouterKey(p *protocol.RouterKeyPDU) error {
	key := RouterKeyKey{ASN: p.ASN(), SKI: p.SKI()}
	if p.Flags()&1 == protocol.Announce {
		s.RouterKeys[key] = p.SPKI()
		return nil
	}
	if _, ok := s.RouterKeys[key]; !ok {
		return fmt.Errorf("%w: router key %+v", ErrWithdrawNotFound, key)
	}
	delete(s.RouterKeys, key)
	return nil
}

func (s *State) applyASPA(p *protocol.AspaPDU) error {
	if p.Flags()&1 == protocol.Announce {
		providers := append([]uint32(nil), p.ProviderASNs()...)
		slices.Sort(providers)
		s.ASPAs[p.CustomerASN()] = providers
		return nil
	}
	if _, ok := s.ASPAs[p.CustomerASN()]; !ok {
		return fmt.Errorf("%w: aspa customer %d", ErrWithdrawNotFound, p.CustomerASN())
	}
	delete(s.ASPAs, p.CustomerASN())
	return nil
}

// Merge folds other into a freshly allocated State: VRP counts are
// summed, ASPA provider lists are unioned (sorted, deduplicated), and
// Router Keys are unioned unless both sides name the same (asn, ski)
// with a different SPKI, which is an ErrMergeConflict.
//
// Merge is commutative and associative over the VRP and ASPA dimensions.
// Associativity for Router Keys holds only when no conflict is
// encountered anywhere in the chain.
func Merge(a, b *State) (*State, error) {
	out := &State{
		VRPs:       make(map[VRPKey]int, len(a.VRPs)+len(b.VRPs)),
		RouterKeys: make(map[RouterKeyKey][]byte, len(a.RouterKeys)+len(b.RouterKeys)),
		ASPAs:      make(map[uint32][]uint32, len(a.ASPAs)+len(b.ASPAs)),
	}

	for k, v := range a.VRPs {
		out.VRPs[k] = v
	}
	for k, v := range b.VRPs {
		out.VRPs[k] += v
	}

	for k, v := range a.RouterKeys {
		out.RouterKeys[k] = v
	}
	for k, v := range b.RouterKeys {
		existing, ok := out.RouterKeys[k]
		if ok && string(existing) != string(v) {
			return nil, fmt.Errorf("%w: asn=%d ski=%x", ErrMergeConflict, k.ASN, k.SKI)
		}
		out.RouterKeys[k] = v
	}

	customers := make(map[uint32]struct{})
	for c := range a.ASPAs {
		customers[c] = struct{}{}
	}
	for c := range b.ASPAs {
		customers[c] = struct{}{}
	}
	for c := range customers {
		union := make(map[uint32]struct{})
		for _, p := range a.ASPAs[c] {
			union[p] = struct{}{}
		}
		for _, p := range b.ASPAs[c] {
			union[p] = struct{}{}
		}
		merged := make([]uint32, 0, len(union))
		for p := range union {
			merged = append(merged, p)
		}
		slices.Sort(merged)
		out.ASPAs[c] = merged
	}

	return out, nil
}

// Count returns the total number of VRP, Router Key and ASPA entries,
// for logging and CLI summaries.
func (s *State) Count() (vrps, routerKeys, aspas int) {
	return len(s.VRPs), len(s.RouterKeys), len(s.ASPAs)
}

// Clone returns a deep copy of s, so a session engine can apply a
// changeset to a working copy and only publish it once the whole episode
// commits successfully.
func (s *State) Clone() *State {
	out := &State{
		VRPs:       make(map[VRPKey]int, len(s.VRPs)),
		RouterKeys: make(map[RouterKeyKey][]byte, len(s.RouterKeys)),
		ASPAs:      make(map[uint32][]uint32, len(s.ASPAs)),
		SessionID:  s.SessionID,
		Serial:     s.Serial,
	}
	for k, v := range s.VRPs {
		out.VRPs[k] = v
	}
	for k, v := range s.RouterKeys {
		out.RouterKeys[k] = append([]byte(nil), v...)
	}
	for k, v := range s.ASPAs {
		out.ASPAs[k] = append([]uint32(nil), v...)
	}
	return out
}
