package client

import "errors"

// ErrIo marks a transport-level failure: dial, read or write error on the
// underlying TCP connection.
var ErrIo = errors.New("client: i/o error")

// ErrProtocolViolation marks an RTR-level violation that is not a codec
// failure: an out-of-sequence PDU, a session-ID mismatch, or a PDU whose
// version does not match the negotiated session version.
var ErrProtocolViolation = errors.New("client: protocol violation")

// ErrNoData marks the server's ErrorReport{code=NoDataAvailable}, which is
// transient: the cache has nothing to serve yet, so the caller should
// retry rather than escalate.
var ErrNoData = errors.New("client: cache has no data available")

// ErrUnsupportedVersion marks a negotiation that exhausted the client's
// supported version set without agreeing with the server.
var ErrUnsupportedVersion = errors.New("client: no mutually supported protocol version")
