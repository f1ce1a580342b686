package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/changeset"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/mellowdrifter/rtrsync/internal/state"
)

// errCacheReset is returned internally by runEpisode when the cache sends
// CacheReset mid-episode. It is never surfaced to callers: Refresh and
// Init catch it and fall back to a full Reset.
var errCacheReset = errors.New("client: cache reset received mid-episode")

// Init opens the connection, negotiates a protocol version and runs an
// initial full Reset. It is the only way to move a Record out of Idle.
func (r *Record) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doReset(ctx)
}

// Reset discards any held state and forces a full resynchronisation,
// ignoring the refresh timer gate.
func (r *Record) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doReset(ctx)
}

// Refresh attempts an incremental Serial Query synchronisation. Unless
// force is set, it is a no-op when the refresh/retry timer has not yet
// elapsed.
func (r *Record) Refresh(ctx context.Context, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !force && !r.dueForRefresh() {
		return nil
	}
	return r.doRefresh(ctx)
}

func (r *Record) connect(ctx context.Context) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", r.Addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrIo, r.Addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	r.conn = conn
	r.reader = bufio.NewReader(conn)
	r.writer = bufio.NewWriter(conn)
	r.sessionState = Connected
	return nil
}

func (r *Record) doReset(ctx context.Context) error {
	if r.conn == nil {
		if err := r.connect(ctx); err != nil {
			return r.fail(err)
		}
	}

	ver := protocol.Highest(r.supported)
	retried := false

	for {
		if err := r.send(protocol.NewResetQueryPDU(ver)); err != nil {
			return r.fail(err)
		}
		r.sessionState = AwaitResponse

		first, err := r.recv()
		if err != nil {
			return r.fail(err)
		}

		if er, ok := first.(*protocol.ErrorReportPDU); ok && er.Code() == protocol.ErrUnsupportedProtocolVersion {
			if retried {
				return r.fail(fmt.Errorf("%w: server rejected retry at version %d", ErrUnsupportedVersion, ver))
			}
			suggested := er.Ver()
			if !protocol.Supports(r.supported, suggested) {
				return r.fail(fmt.Errorf("%w: server suggested unsupported version %d", ErrUnsupportedVersion, suggested))
			}
			r.logger.Infof("server rejected version %d, retrying at %d", ver, suggested)
			ver = suggested
			retried = true
			continue
		}

		r.version = ver
		committed, sessionID, serial, err := r.runEpisode(first, nil, nil)
		if err != nil {
			if errors.Is(err, errCacheReset) {
				// A cache reset in response to our own reset query means
				// the cache wants us to retry; one retry is reasonable,
				// further ones would spin forever on a misbehaving cache.
				if retried {
					return r.fail(fmt.Errorf("%w: repeated cache reset during reset", ErrProtocolViolation))
				}
				retried = true
				continue
			}
			return r.fail(err)
		}

		r.state = committed
		r.sessionID = sessionID
		r.haveSession = true
		r.serial = serial
		r.haveEOD = true
		r.lastRun = r.clock.Now()
		r.lastFailure = nil
		r.sessionState = Committed
		r.closeConn()
		return nil
	}
}

func (r *Record) doRefresh(ctx context.Context) error {
	if !r.haveSession {
		return r.doReset(ctx)
	}
	if r.conn == nil {
		if err := r.connect(ctx); err != nil {
			return r.fail(err)
		}
	}

	sq := protocol.NewSerialQueryPDU(r.version, r.sessionID, r.serial)
	if err := r.send(sq); err != nil {
		return r.fail(err)
	}
	r.sessionState = AwaitResponse

	first, err := r.recv()
	if err != nil {
		return r.fail(err)
	}

	expected := r.sessionID
	committed, sessionID, serial, err := r.runEpisode(first, r.state, &expected)
	if errors.Is(err, errCacheReset) {
		r.logger.Infof("cache reset mid-refresh, falling back to full reset")
		return r.doReset(ctx)
	}
	if err != nil {
		// ErrNoData is transient (the cache has nothing new yet) but it
		// still counts as a failed episode: last_failure is set so the
		// retry-interval timer gate applies instead of the refresh one.
		return r.fail(err)
	}

	r.state = committed
	r.sessionID = sessionID
	r.serial = serial
	r.lastRun = r.clock.Now()
	r.lastFailure = nil
	r.sessionState = Committed
	r.closeConn()
	return nil
}

// runEpisode drives one query/response episode to completion: it reads
// PDUs starting from first until EndOfData (success), CacheReset
// (escalation) or ErrorReport (failure), accumulating payload PDUs in a
// Changeset and applying them atomically to a clone of base (or a fresh
// State, if base is nil) once EndOfData arrives.
//
// expected, if non-nil, is the session_id the episode's CacheResponse
// must carry; a mismatch aborts with ErrProtocolViolation and an
// ErrorReport{CorruptData} sent to the cache.
func (r *Record) runEpisode(first protocol.PDU, base *state.State, expected *uint16) (*state.State, uint16, uint32, error) {
	cs := changeset.New()
	pdu := first

	var sessionID uint16
	var sessionKnown bool

	for {
		if pdu.Ver() != r.version {
			r.sendError(protocol.ErrUnexpectedProtocolVersion, "unexpected protocol version")
			return nil, 0, 0, fmt.Errorf("%w: pdu version %d != negotiated %d", ErrProtocolViolation, pdu.Ver(), r.version)
		}

		switch p := pdu.(type) {
		case *protocol.CacheResponsePDU:
			if expected != nil && p.Session() != *expected {
				r.sendError(protocol.ErrCorruptData, "session id mismatch")
				return nil, 0, 0, fmt.Errorf("%w: session id mismatch: got %d want %d", ErrProtocolViolation, p.Session(), *expected)
			}
			sessionID = p.Session()
			sessionKnown = true
			r.sessionState = ReceivingDeltas

		case *protocol.CacheResetPDU:
			return nil, 0, 0, errCacheReset

		case *protocol.SerialNotifyPDU:
			// Informational only; the session engine decides for itself
			// when to refresh. Ignore and keep reading.

		case *protocol.EndOfDataPDU:
			if !sessionKnown {
				return nil, 0, 0, fmt.Errorf("%w: end of data before cache response", ErrProtocolViolation)
			}
			working := base
			if working == nil {
				working = state.New(sessionID)
			} else {
				working = working.Clone()
			}
			if err := working.Apply(cs); err != nil {
				return nil, 0, 0, err
			}
			working.SessionID = sessionID
			working.Serial = p.Serial()
			// A v0 EndOfData carries no intervals; the current ones stay.
			if p.Ver() != protocol.V0 {
				r.refreshInterval = time.Duration(p.Refresh()) * time.Second
				r.retryInterval = time.Duration(p.Retry()) * time.Second
				r.expireInterval = time.Duration(p.Expire()) * time.Second
			}
			return working, sessionID, p.Serial(), nil

		case *protocol.ErrorReportPDU:
			if p.Code() == protocol.ErrNoDataAvailable {
				return nil, 0, 0, ErrNoData
			}
			return nil, 0, 0, fmt.Errorf("%w: cache reported error %d: %s", ErrProtocolViolation, p.Code(), p.Text())

		default:
			if !protocol.IsPayload(pdu.Type()) {
				return nil, 0, 0, fmt.Errorf("%w: unexpected pdu %s", ErrProtocolViolation, pdu.Type())
			}
			if !sessionKnown {
				return nil, 0, 0, fmt.Errorf("%w: payload pdu before cache response", ErrProtocolViolation)
			}
			if err := cs.Add(pdu); err != nil {
				return nil, 0, 0, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
			}
		}

		next, err := r.recv()
		if err != nil {
			return nil, 0, 0, err
		}
		pdu = next
	}
}

func (r *Record) send(pdu protocol.PDU) error {
	if err := pdu.Write(r.writer); err != nil {
		return fmt.Errorf("%w: write: %v", ErrIo, err)
	}
	if err := r.writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrIo, err)
	}
	return nil
}

func (r *Record) recv() (protocol.PDU, error) {
	pdu, err := protocol.GetPDU(r.reader)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read: %v", ErrIo, err)
	}
	return pdu, nil
}

func (r *Record) sendError(code uint16, text string) {
	pdu := protocol.NewErrorReportPDU(r.version, code, nil, []byte(text))
	if err := r.send(pdu); err != nil {
		r.logger.Warnf("failed to send error report: %v", err)
	}
}

// fail records err as the cause of the current episode's failure,
// releases the socket (a failed episode never hands its connection on
// to the next one), and returns err so callers can write
// `return r.fail(err)`.
func (r *Record) fail(err error) error {
	r.lastFailure = err
	r.lastFailureAt = r.clock.Now()
	r.closeConn()
	return err
}

// closeConn releases the record's connection, if any, so that every
// exit from an episode - success, failure, or cancellation - leaves no
// socket open behind it. The next episode dials fresh.
func (r *Record) closeConn() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.conn = nil
	r.reader = nil
	r.writer = nil
}
