package orchestrator

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/client"
	"github.com/mellowdrifter/rtrsync/internal/logging"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func oneShotCache(t *testing.T, session uint16, serial uint32, vrp [4]byte, asn uint32) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		w := bufio.NewWriter(conn)

		q, err := protocol.GetPDU(r)
		if err != nil {
			return
		}
		_ = protocol.NewCacheResponsePDU(q.Ver(), session).Write(w)
		_ = protocol.NewIpv4PrefixPDU(q.Ver(), protocol.Announce, 24, 32, vrp, asn).Write(w)
		_ = protocol.NewEndOfDataPDU(q.Ver(), session, serial, 3600, 600, 7200).Write(w)
		_ = w.Flush()
	}()

	return ln.Addr().String()
}

func TestInitMergesTwoCaches(t *testing.T) {
	addr1 := oneShotCache(t, 1, 5, [4]byte{10, 0, 0, 0}, 64512)
	addr2 := oneShotCache(t, 2, 9, [4]byte{20, 0, 0, 0}, 64513)

	o := New(logging.New("error"), &fakeClock{t: time.Unix(1000, 0)}, protocol.DefaultSupportedVersions)
	err := o.Init(context.Background(), []CacheConfig{
		{ID: 1, Name: "cache-a", Addr: addr1},
		{ID: 2, Name: "cache-b", Addr: addr2},
	})
	require.NoError(t, err)

	merged, err := o.MergedState()
	require.NoError(t, err)
	vrps, _, _ := merged.Count()
	require.Equal(t, 2, vrps)
}

func TestInitCapturesPerCacheFailureWithoutBlockingOthers(t *testing.T) {
	addrGood := oneShotCache(t, 1, 1, [4]byte{10, 0, 0, 0}, 64512)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addrBad := ln.Addr().String()
	require.NoError(t, ln.Close()) // nothing listens here: dial fails

	o := New(logging.New("error"), &fakeClock{t: time.Unix(1000, 0)}, protocol.DefaultSupportedVersions)
	err = o.Init(context.Background(), []CacheConfig{
		{ID: 1, Name: "cache-good", Addr: addrGood},
		{ID: 2, Name: "cache-bad", Addr: addrBad},
	})
	require.Error(t, err)

	goodRec, ok := o.Record(1)
	require.True(t, ok)
	require.NoError(t, goodRec.LastFailure())

	badRec, ok := o.Record(2)
	require.True(t, ok)
	require.Error(t, badRec.LastFailure())
}

func TestRefreshAllReportsPerCacheErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr1 := ln.Addr().String()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		w := bufio.NewWriter(conn)
		q, err := protocol.GetPDU(r)
		if err != nil {
			return
		}
		_ = protocol.NewCacheResponsePDU(q.Ver(), 1).Write(w)
		_ = protocol.NewIpv4PrefixPDU(q.Ver(), protocol.Announce, 24, 32, [4]byte{10, 0, 0, 0}, 64512).Write(w)
		_ = protocol.NewEndOfDataPDU(q.Ver(), 1, 1, 3600, 600, 7200).Write(w)
		_ = w.Flush()
	}()

	o := New(logging.New("error"), &fakeClock{t: time.Unix(1000, 0)}, protocol.DefaultSupportedVersions)
	require.NoError(t, o.Init(context.Background(), []CacheConfig{
		{ID: 1, Name: "cache-a", Addr: addr1},
	}))

	// Each episode closes its own socket on completion, so a forced
	// refresh dials a fresh connection rather than reusing the one Init
	// used. Close the listener so that dial fails, simulating the cache
	// going away between refreshes.
	require.NoError(t, ln.Close())

	errs := o.RefreshAll(context.Background(), true)
	require.Len(t, errs, 1)
	require.Contains(t, errs, 1)
}

func TestRestoreRegistersRecordWithoutIO(t *testing.T) {
	o := New(logging.New("error"), &fakeClock{t: time.Unix(1000, 0)}, protocol.DefaultSupportedVersions)

	rec := client.New(3, "cache-c", "127.0.0.1:1", protocol.DefaultSupportedVersions, logging.New("error"), &fakeClock{t: time.Unix(1000, 0)})
	o.Restore(rec)

	require.Equal(t, []int{3}, o.Records())
	got, ok := o.Record(3)
	require.True(t, ok)
	require.Same(t, rec, got)
}
