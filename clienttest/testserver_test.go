package clienttest

import (
	"net/netip"
	"testing"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/config"
	"github.com/mellowdrifter/rtrsync/internal/logging"
	"github.com/mellowdrifter/rtrsync/internal/server"
	"github.com/mellowdrifter/rtrsync/internal/state"
)

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

// startTestServer binds a server.Server to an ephemeral loopback port,
// seeds its Maintainer with one VRP so ResetQuery has something to
// announce, and tears it down when the test finishes. It returns the
// address clients should dial.
func startTestServer(t *testing.T) string {
	t.Helper()

	cfg := &config.Config{ListenAddr: "127.0.0.1:0", LogLevel: "error"}
	s := server.New(cfg, logging.New("error"))

	s.Maintainer().AnnounceVRP(state.VRPKey{
		ASN:       64512,
		Addr:      mustAddr("10.0.0.0"),
		PrefixLen: 24,
		MaxLen:    24,
	})

	if err := s.Listen(); err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	go s.Serve()
	t.Cleanup(func() {
		if err := s.Stop(2 * time.Second); err != nil {
			t.Logf("server stop: %v", err)
		}
	})

	return s.Addr().String()
}
