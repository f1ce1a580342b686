package server

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleROA(t *testing.T, prefix string, maxMask uint8, asn uint32) roa {
	p, err := netip.ParsePrefix(prefix)
	require.NoError(t, err)
	return roa{Prefix: p, MaxMask: maxMask, ASN: asn}
}

func TestIsValidRejectsZeroMaxMask(t *testing.T) {
	r := sampleROA(t, "10.0.0.0/24", 0, 65000)
	require.False(t, r.isValid())
}

func TestIsValidRejectsMaxMaskBelowPrefixLen(t *testing.T) {
	r := sampleROA(t, "10.0.0.0/24", 16, 65000)
	require.False(t, r.isValid())
}

func TestIsValidRejectsIpv4MaxMaskAbove32(t *testing.T) {
	r := sampleROA(t, "10.0.0.0/24", 33, 65000)
	require.False(t, r.isValid())
}

func TestIsValidAcceptsOrdinaryIpv4ROA(t *testing.T) {
	r := sampleROA(t, "10.0.0.0/24", 32, 65000)
	require.True(t, r.isValid())
}

func TestIsValidAcceptsOrdinaryIpv6ROA(t *testing.T) {
	r := sampleROA(t, "2001:db8::/32", 48, 65000)
	require.True(t, r.isValid())
}

func TestIsValidRejectsIpv6MaxMaskAbove128(t *testing.T) {
	r := sampleROA(t, "2001:db8::/32", 129, 65000)
	require.False(t, r.isValid())
}

func TestGetSetOfValidatedROAsDropsDuplicatesAndInvalid(t *testing.T) {
	roas := []roa{
		sampleROA(t, "10.0.0.0/24", 32, 65000),
		sampleROA(t, "10.0.0.0/24", 32, 65000), // duplicate
		sampleROA(t, "10.0.1.0/24", 0, 65000),  // invalid: zero max length
	}
	got := GetSetOfValidatedROAs(roas)
	require.Len(t, got, 1)
	require.Equal(t, uint32(65000), got[0].ASN)
}

func TestRoasToVRPKeys(t *testing.T) {
	roas := []roa{sampleROA(t, "10.0.0.0/24", 32, 65000)}
	keys := roasToVRPKeys(roas)
	require.Len(t, keys, 1)
	require.Equal(t, uint32(65000), keys[0].ASN)
	require.Equal(t, uint8(24), keys[0].PrefixLen)
	require.Equal(t, uint8(32), keys[0].MaxLen)
	require.Equal(t, netip.MustParseAddr("10.0.0.0"), keys[0].Addr)
}

func TestDecodeASNHandlesBothShapes(t *testing.T) {
	require.Equal(t, uint32(65000), decodeASN(Jsonroa{ASN: float64(65000)}))
	require.Equal(t, uint32(65000), decodeASN(Jsonroa{ASN: "AS65000"}))
	require.Equal(t, uint32(0), decodeASN(Jsonroa{ASN: nil}))
}
