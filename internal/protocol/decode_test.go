package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func FuzzDecipherPDU(f *testing.F) {
	// Add a few valid seed inputs (optional but helps fuzzing)
	f.Add([]byte{
		1, byte(SerialNotify),
		0, 1, // session
		0, 0, 0, 12, // length
		0, 0, 0, 42, // serial
	})
	f.Add([]byte{
		1, byte(SerialQuery),
		0, 1,
		0, 0, 0, 12,
		0, 0, 0, 99,
	})
	// Invalid or short PDU
	f.Add([]byte{1})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Panic safety: your func should never panic
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("decipherPDU panicked: %v", r)
			}
		}()

		_, _ = decipherPDU(data)
	})
}

func roundTrip(t *testing.T, pdu PDU) PDU {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, pdu.Write(&buf))
	got, err := GetPDU(&buf)
	require.NoError(t, err)
	return got
}

func TestSerialNotifyRoundTrip(t *testing.T) {
	orig := NewSerialNotifyPDU(V2, 100, 12345)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestSerialQueryRoundTrip(t *testing.T) {
	orig := NewSerialQueryPDU(V1, 100, 12345)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestResetQueryRoundTrip(t *testing.T) {
	orig := NewResetQueryPDU(V2)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestCacheResponseRoundTrip(t *testing.T) {
	orig := NewCacheResponsePDU(V2, 42)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestIpv4PrefixRoundTrip(t *testing.T) {
	orig := NewIpv4PrefixPDU(V2, Announce, 24, 32, [4]byte{1, 0, 0, 0}, 4608)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestIpv6PrefixRoundTrip(t *testing.T) {
	orig := NewIpv6PrefixPDU(V2, Withdraw, 48, 48, [16]byte{0x20, 0x01, 0xd, 0xb8}, 65000)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestEndOfDataRoundTripV0(t *testing.T) {
	orig := NewEndOfDataPDU(V0, 7, 99, 0, 0, 0)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestEndOfDataRoundTripV2(t *testing.T) {
	orig := NewEndOfDataPDU(V2, 7, 99, 3600, 600, 7200)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestCacheResetRoundTrip(t *testing.T) {
	orig := NewCacheResetPDU(V1)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestRouterKeyRoundTrip(t *testing.T) {
	var ski [20]byte
	for i := range ski {
		ski[i] = byte(i)
	}
	orig := NewRouterKeyPDU(V1, Announce, ski, 4608, []byte{0xde, 0xad, 0xbe, 0xef})
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestAspaRoundTrip(t *testing.T) {
	orig := NewAspaPDU(V2, Announce, 3, 4708, []uint32{10, 20, 30})
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestAspaWithdrawMustBeEmpty(t *testing.T) {
	orig := NewAspaPDU(V2, Withdraw, 0, 4708, nil)
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestErrorReportRoundTrip(t *testing.T) {
	orig := NewErrorReportPDU(V2, 4, []byte{1, 2, 3}, []byte("Unsupported Protocol Version"))
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestErrorReportRoundTripNoPDU(t *testing.T) {
	orig := NewErrorReportPDU(V1, 0, nil, []byte("Corrupt Data"))
	require.Equal(t, orig, roundTrip(t, orig))
}

func TestDecipherRejectsShortPDU(t *testing.T) {
	_, err := decipherPDU([]byte{1})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecipherRejectsUnknownType(t *testing.T) {
	_, err := decipherPDU([]byte{2, 99, 0, 0, 0, 0, 0, 8})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecipherRejectsInvalidIpv4MaxLength(t *testing.T) {
	data := []byte{
		2, byte(Ipv4Prefix),
		0, 0,
		0, 0, 0, 20,
		Announce, 24, 33, 0, // prefix_len=24 max_len=33 (> 32)
		1, 0, 0, 0,
		0, 0, 18, 0,
	}
	_, err := decipherPDU(data)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecipherRejectsInvalidPDULength(t *testing.T) {
	r := bytes.NewReader([]byte{2, byte(ResetQuery), 0, 0, 0, 0, 0, 4})
	_, err := GetPDU(r)
	require.Error(t, err)
}

func TestDecipherRejectsAspaWithdrawWithProviders(t *testing.T) {
	data := []byte{
		2, byte(Aspa),
		0, 0,
		0, 0, 0, 20,
		Withdraw, 0, 0, 0,
		0, 0, 18, 100,
		0, 0, 0, 10,
	}
	_, err := decipherPDU(data)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecipherRejectsAspaAnnounceWithNoProviders(t *testing.T) {
	data := []byte{
		2, byte(Aspa),
		0, 0,
		0, 0, 0, 16,
		Announce, 0, 0, 0,
		0, 0, 18, 100,
	}
	_, err := decipherPDU(data)
	require.ErrorIs(t, err, ErrMalformed)
}
