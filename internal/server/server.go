package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/config"
	"github.com/mellowdrifter/rtrsync/internal/protocol"

	"go.uber.org/zap"
)

type Server struct {
	// large fields first
	listener net.Listener
	logger   *zap.SugaredLogger
	cfg      *config.Config

	clientsMu  sync.Mutex
	clients    map[string]*Client
	urls       []string
	maintainer *Maintainer
	supported  []protocol.Version

	// sync types next
	wg sync.WaitGroup

	// smaller fields last
	shuttingDown bool
}

const (
	refreshROA = 5 * time.Minute
)

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.SugaredLogger) *Server {
	return &Server{
		logger:     logger,
		cfg:        cfg,
		clients:    make(map[string]*Client),
		urls:       cfg.RPKIURLs,
		maintainer: NewMaintainer(newSessionID()),
		supported:  protocol.DefaultSupportedVersions,
		wg:         sync.WaitGroup{},
	}
}

// Maintainer exposes the server's payload set, mainly for tests and an
// eventual admin surface.
func (s *Server) Maintainer() *Maintainer {
	return s.maintainer
}

// Start begins listening and accepting client connections. It blocks
// until the listener is closed by Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen loads the initial VRP feed (if configured) and binds the
// listening socket, without accepting any connections yet. Splitting
// this out of Start lets callers (tests, mainly) learn the bound
// address - useful with ":0" - before the accept loop takes over.
func (s *Server) Listen() error {
	ctx := context.Background()

	if len(s.urls) > 0 {
		roas, err := s.loadROAs(ctx)
		if err != nil {
			return fmt.Errorf("failed to load initial ROAs: %w", err)
		}
		s.maintainer.ReplaceVRPFeed(roasToVRPKeys(roas))
		vrps, routerKeys, aspas := s.maintainer.Count()
		s.logger.Infof("Loaded %d VRPs (%d router keys, %d ASPAs) from initial feed", vrps, routerKeys, aspas)
	}

	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = l
	s.logger.Infof("Daemon running with session id %d", s.maintainer.SessionID())
	return nil
}

// Serve runs the accept loop against an already-bound listener. Call
// Listen first.
func (s *Server) Serve() error {
	if len(s.urls) > 0 {
		go s.periodicROAUpdater(context.Background())
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown {
				return nil // graceful exit
			}
			s.logger.Errorf("accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Addr returns the listener's bound address. Valid only after Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConnection handles a new client
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	client := NewClient(conn, s.logger, s.maintainer, s.supported)
	id := client.ID()

	s.clientsMu.Lock()
	s.clients[id] = client
	s.clientsMu.Unlock()

	s.logger.Infof("Client connected: %s", id)

	if err := client.Handle(); err != nil {
		s.logger.Warnf("Client %s error: %v", id, err)
	}

	s.clientsMu.Lock()
	delete(s.clients, id)
	s.clientsMu.Unlock()

	s.logger.Infof("Client disconnected: %s", id)
}

// notifyAll tells every connected client that a new serial is available.
func (s *Server) notifyAll(serial uint32) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for _, client := range s.clients {
		s.logger.Infof("Notifying client %s of new serial %d", client.ID(), serial)
		client.notify(s.maintainer.SessionID(), serial)
	}
}

// Stop shuts down the server gracefully
func (s *Server) Stop(timeout time.Duration) error {
	s.shuttingDown = true

	s.logger.Info("Shutting down listener...")
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All connections closed cleanly")
		return nil
	case <-time.After(timeout):
		s.logger.Warn("Shutdown timed out; some clients may still be active")
		return fmt.Errorf("timeout waiting for shutdown")
	}
}
