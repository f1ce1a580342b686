// Package changeset accumulates the payload PDUs of one synchronisation
// episode so they can be applied to state.State atomically on EndOfData.
package changeset

import (
	"fmt"

	"github.com/mellowdrifter/rtrsync/internal/protocol"
)

// Changeset is an ordered, type-tagged accumulator of announce/withdraw
// PDUs. All PDUs added to one Changeset must share a protocol version;
// order is preserved as the arrival order, since the protocol requires
// producers to emit withdraws before any announce that re-instates the
// same key.
type Changeset struct {
	version protocol.Version
	hasVer  bool
	pdus    []protocol.PDU
}

// New returns an empty Changeset.
func New() *Changeset {
	return &Changeset{}
}

// CanAdd reports whether pdu is a payload-bearing type this Changeset may
// accumulate. Control/framing PDUs (CacheResponse, EndOfData, CacheReset,
// SerialNotify, ErrorReport, the two queries) must be handled by the
// session engine directly.
func (c *Changeset) CanAdd(pdu protocol.PDU) bool {
	return protocol.IsPayload(pdu.Type())
}

// Add appends pdu to the changeset. It returns an error if pdu is not a
// payload PDU, or if its version differs from PDUs already accumulated.
func (c *Changeset) Add(pdu protocol.PDU) error {
	if !c.CanAdd(pdu) {
		return fmt.Errorf("changeset: PDU type %s is not payload-bearing", pdu.Type())
	}
	if c.hasVer && pdu.Ver() != c.version {
		return fmt.Errorf("changeset: mixed protocol versions %d and %d", c.version, pdu.Ver())
	}
	if !c.hasVer {
		c.version = pdu.Ver()
		c.hasVer = true
	}
	c.pdus = append(c.pdus, pdu)
	return nil
}

// PDUs returns the accumulated PDUs in arrival order. The returned slice
// must not be mutated by the caller.
func (c *Changeset) PDUs() []protocol.PDU {
	return c.pdus
}

// Len reports how many PDUs have been accumulated.
func (c *Changeset) Len() int {
	return len(c.pdus)
}

// Version returns the shared protocol version of the accumulated PDUs,
// or false if the changeset is empty.
func (c *Changeset) Version() (protocol.Version, bool) {
	return c.version, c.hasVer
}
