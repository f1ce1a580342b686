package changeset

import (
	"testing"

	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/stretchr/testify/require"
)

func TestCanAddPayloadOnly(t *testing.T) {
	c := New()
	require.True(t, c.CanAdd(protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Announce, 24, 32, [4]byte{1, 0, 0, 0}, 1)))
	require.False(t, c.CanAdd(protocol.NewCacheResponsePDU(protocol.V2, 1)))
	require.False(t, c.CanAdd(protocol.NewEndOfDataPDU(protocol.V2, 1, 1, 1, 1, 1)))
}

func TestAddPreservesOrder(t *testing.T) {
	c := New()
	p1 := protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Withdraw, 24, 32, [4]byte{1, 0, 0, 0}, 1)
	p2 := protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Announce, 24, 32, [4]byte{1, 0, 0, 0}, 1)

	require.NoError(t, c.Add(p1))
	require.NoError(t, c.Add(p2))

	got := c.PDUs()
	require.Len(t, got, 2)
	require.Same(t, p1, got[0])
	require.Same(t, p2, got[1])
}

func TestAddRejectsControlPDU(t *testing.T) {
	c := New()
	err := c.Add(protocol.NewCacheResetPDU(protocol.V2))
	require.Error(t, err)
	require.Equal(t, 0, c.Len())
}

func TestAddRejectsMixedVersions(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(protocol.NewIpv4PrefixPDU(protocol.V1, protocol.Announce, 24, 32, [4]byte{1, 0, 0, 0}, 1)))
	err := c.Add(protocol.NewIpv4PrefixPDU(protocol.V2, protocol.Announce, 24, 32, [4]byte{1, 0, 0, 0}, 1))
	require.Error(t, err)
}

func TestVersionReportsEmpty(t *testing.T) {
	c := New()
	_, ok := c.Version()
	require.False(t, ok)
}
