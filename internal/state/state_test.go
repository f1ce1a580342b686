package state

import (
	"net/netip"
	"testing"

	"github.com/mellowdrifter/rtrsync/internal/changeset"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/stretchr/testify/require"
)

func TestApplyVRPAnnounceThenWithdraw(t *testing.T) {
	s := New(1)
	cs := changeset.New()
	require.NoError(t, cs.Add(protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Announce, 24, 32, [4]byte{10, 0, 0, 0}, 64512)))
	require.NoError(t, s.Apply(cs))

	vrps, _, _ := s.Count()
	require.Equal(t, 1, vrps)

	cs2 := changeset.New()
	require.NoError(t, cs2.Add(protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Withdraw, 24, 32, [4]byte{10, 0, 0, 0}, 64512)))
	require.NoError(t, s.Apply(cs2))

	vrps, _, _ = s.Count()
	require.Equal(t, 0, vrps)
}

func TestApplyVRPDuplicateAnnounceTracksCount(t *testing.T) {
	s := New(1)
	cs := changeset.New()
	pdu := protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Announce, 24, 32, [4]byte{10, 0, 0, 0}, 64512)
	require.NoError(t, cs.Add(pdu))
	require.NoError(t, cs.Add(pdu))
	require.NoError(t, s.Apply(cs))

	key := VRPKey{ASN: 64512, Addr: netip.AddrFrom4([4]byte{10, 0, 0, 0}), PrefixLen: 24, MaxLen: 32}
	require.Equal(t, 2, s.VRPs[key])

	cs2 := changeset.New()
	require.NoError(t, cs2.Add(protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Withdraw, 24, 32, [4]byte{10, 0, 0, 0}, 64512)))
	require.NoError(t, s.Apply(cs2))
	require.Equal(t, 1, s.VRPs[key])
}

func TestApplyWithdrawNotFoundFails(t *testing.T) {
	s := New(1)
	cs := changeset.New()
	require.NoError(t, cs.Add(protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Withdraw, 24, 32, [4]byte{10, 0, 0, 0}, 64512)))
	err := s.Apply(cs)
	require.ErrorIs(t, err, ErrWithdrawNotFound)
}

func TestApplyIpv6VRP(t *testing.T) {
	s := New(1)
	cs := changeset.New()
	addr := [16]byte{0x20, 0x01, 0x0d, 0xb8}
	require.NoError(t, cs.Add(protocol.NewIpv6PrefixPDU(protocol.V2, protocol.Announce, 32, 48, addr, 64512)))
	require.NoError(t, s.Apply(cs))

	key := VRPKey{ASN: 64512, Addr: netip.AddrFrom16(addr), PrefixLen: 32, MaxLen: 48}
	require.Equal(t, 1, s.VRPs[key])
}

func TestApplyRouterKeyAnnounceOverwritesThenWithdraw(t *testing.T) {
	s := New(1)
	var ski [20]byte
	ski[0] = 1

	cs := changeset.New()
	require.NoError(t, cs.Add(protocol.NewRouterKeyPDU(protocol.V2, protocol.Announce, ski, 64512, []byte{1, 2, 3})))
	require.NoError(t, s.Apply(cs))

	cs2 := changeset.New()
	require.NoError(t, cs2.Add(protocol.NewRouterKeyPDU(protocol.V2, protocol.Announce, ski, 64512, []byte{4, 5, 6})))
	require.NoError(t, s.Apply(cs2))

	key := RouterKeyKey{ASN: 64512, SKI: ski}
	require.Equal(t, []byte{4, 5, 6}, s.RouterKeys[key])

	cs3 := changeset.New()
	require.NoError(t, cs3.Add(protocol.NewRouterKeyPDU(protocol.V2, protocol.Withdraw, ski, 64512, nil)))
	require.NoError(t, s.Apply(cs3))
	require.NotContains(t, s.RouterKeys, key)
}

func TestApplyASPAAnnounceReplacesWholeTuple(t *testing.T) {
	s := New(1)
	cs := changeset.New()
	require.NoError(t, cs.Add(protocol.NewAspaPDU(protocol.V2, protocol.Announce, 0, 64512, []uint32{30, 10, 20})))
	require.NoError(t, s.Apply(cs))
	require.Equal(t, []uint32{10, 20, 30}, s.ASPAs[64512])

	cs2 := changeset.New()
	require.NoError(t, cs2.Add(protocol.NewAspaPDU(protocol.V2, protocol.Announce, 0, 64512, []uint32{99})))
	require.NoError(t, s.Apply(cs2))
	require.Equal(t, []uint32{99}, s.ASPAs[64512])
}

func TestApplyASPAWithdrawNotFoundFails(t *testing.T) {
	s := New(1)
	cs := changeset.New()
	require.NoError(t, cs.Add(protocol.NewAspaPDU(protocol.V2, protocol.Withdraw, 0, 64512, nil)))
	err := s.Apply(cs)
	require.ErrorIs(t, err, ErrWithdrawNotFound)
}

func TestMergeSumsVRPCounts(t *testing.T) {
	a := New(1)
	b := New(2)
	key := VRPKey{ASN: 64512, Addr: netip.AddrFrom4([4]byte{10, 0, 0, 0}), PrefixLen: 24, MaxLen: 32}
	a.VRPs[key] = 1
	b.VRPs[key] = 2

	merged, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, 3, merged.VRPs[key])
}

func TestMergeRouterKeysAgreeing(t *testing.T) {
	a := New(1)
	b := New(2)
	key := RouterKeyKey{ASN: 64512}
	a.RouterKeys[key] = []byte{1, 2, 3}
	b.RouterKeys[key] = []byte{1, 2, 3}

	merged, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, merged.RouterKeys[key])
}

func TestMergeRouterKeysConflict(t *testing.T) {
	a := New(1)
	b := New(2)
	key := RouterKeyKey{ASN: 64512}
	a.RouterKeys[key] = []byte{1, 2, 3}
	b.RouterKeys[key] = []byte{9, 9, 9}

	_, err := Merge(a, b)
	require.ErrorIs(t, err, ErrMergeConflict)
}

func TestMergeASPAUnionsProviders(t *testing.T) {
	a := New(1)
	b := New(2)
	a.ASPAs[64512] = []uint32{10, 20}
	b.ASPAs[64512] = []uint32{20, 30}

	merged, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, []uint32{10, 20, 30}, merged.ASPAs[64512])
}

func TestSerialLessWraps(t *testing.T) {
	require.True(t, SerialLess(1, 2))
	require.False(t, SerialLess(2, 1))
	require.True(t, SerialLess(0xFFFFFFFF, 0))
	require.False(t, SerialLess(0, 0xFFFFFFFF))
	require.False(t, SerialLess(5, 5))
}
