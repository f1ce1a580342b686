package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/mellowdrifter/rtrsync/internal/protocol"

	"go.uber.org/zap"
)

// Default timer intervals advertised on EndOfData, used until a
// per-server override is configured.
const (
	DefaultRefreshInterval = uint32(3600) // 1 - 86400
	DefaultRetryInterval   = uint32(600)  // 1 - 7200
	DefaultExpireInterval  = uint32(7200) // 600 - 172800
)

type Client struct {
	conn       net.Conn
	reader     *bufio.Reader
	writer     *bufio.Writer
	logger     *zap.SugaredLogger
	id         string
	closeOnce  sync.Once
	version    protocol.Version
	maintainer *Maintainer
	supported  []protocol.Version
	cfg        cfg
}

type cfg struct {
	refreshInterval uint32
	retryInterval   uint32
	expireInterval  uint32
}

// NewClient wraps a new connection into a Client instance.
func NewClient(conn net.Conn, baseLogger *zap.SugaredLogger, m *Maintainer, supported []protocol.Version) *Client {
	remote := conn.RemoteAddr().String()
	logger := baseLogger.With("client", remote)

	return &Client{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		writer:     bufio.NewWriter(conn),
		logger:     logger,
		id:         remote,
		maintainer: m,
		supported:  supported,
		cfg:        *newCfg(),
	}
}

// ID returns the unique identifier for the client (IP:Port).
func (c *Client) ID() string {
	return c.id
}

func newCfg() *cfg {
	return &cfg{
		refreshInterval: DefaultRefreshInterval,
		retryInterval:   DefaultRetryInterval,
		expireInterval:  DefaultExpireInterval,
	}
}

// Handle manages the full lifecycle of the client connection.
func (c *Client) Handle() error {
	defer c.Close()

	c.logger.Info("Client session started")

	ver, err := protocol.Negotiate(c.reader, c.supported)
	if err != nil {
		c.logger.Warnf("Negotiation failed: %v", err)
		c.sendAndCloseError(protocol.ErrUnsupportedProtocolVersion, "unsupported protocol version")
		return err
	}
	c.logger.Infof("Negotiated version: %d", ver)
	c.version = ver

	for {
		pdu, err := protocol.GetPDU(c.reader)
		if err != nil {
			if isDisconnectError(err) {
				c.logger.Info("Client disconnected")
				return nil
			}
			c.logger.Warnf("Read error: %v", err)
			c.sendAndCloseError(protocol.ErrCorruptData, "malformed PDU")
			return err
		}

		if pdu.Ver() != c.version {
			c.logger.Warnf("PDU version %d does not match negotiated version %d", pdu.Ver(), c.version)
			c.sendAndCloseError(protocol.ErrUnexpectedProtocolVersion, "unexpected protocol version")
			return nil
		}

		switch p := pdu.(type) {
		case *protocol.ResetQueryPDU:
			c.logger.Info("Received Reset Query PDU")
			c.sendFullState()

		case *protocol.SerialQueryPDU:
			c.logger.Info("Received Serial Query PDU")
			c.handleSerialQuery(p)

		default:
			c.logger.Warnf("Unexpected PDU type: %s", pdu.Type())
			c.sendAndCloseError(protocol.ErrUnsupportedPDUType, "unexpected PDU type")
			return nil
		}
	}
}

// handleSerialQuery implements the decision table: a session ID
// mismatch always forces a CacheReset; a request for the current serial
// gets an empty EndOfData; a recoverable gap replays the concatenated
// log; anything else forces a CacheReset.
func (c *Client) handleSerialQuery(pdu *protocol.SerialQueryPDU) {
	if pdu.Session() != c.maintainer.SessionID() {
		c.logger.Infof("Client session %d does not match server session %d", pdu.Session(), c.maintainer.SessionID())
		c.sendCacheReset()
		return
	}

	deltas, serial, recoverable := c.maintainer.ReplaySince(pdu.Serial())
	if !recoverable {
		c.logger.Infof("Client requested serial %d, not recoverable from the log", pdu.Serial())
		c.sendCacheReset()
		return
	}

	c.sendCacheResponse()
	for _, d := range deltas {
		c.sendDelta(d)
	}
	c.sendEndOfDataPDU(c.maintainer.SessionID(), serial)
}

func (c *Client) sendDelta(d delta) {
	pdus := deltaToPDUs(c.version, d)
	for _, pdu := range pdus {
		if err := pdu.Write(c.writer); err != nil {
			c.logger.Errorf("Failed to write delta PDU: %v", err)
			c.sendAndCloseError(protocol.ErrCorruptData, "write error")
			return
		}
	}
	if err := c.writer.Flush(); err != nil {
		c.logger.Errorf("Failed to flush writer after sending delta: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "flush error")
	}
}

func (c *Client) sendCacheReset() {
	c.logger.Info("Sending Cache Reset PDU to client")
	rpdu := protocol.NewCacheResetPDU(c.version)
	if err := rpdu.Write(c.writer); err != nil {
		c.logger.Errorf("Failed to write Cache Reset PDU: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "write error")
		return
	}
	if err := c.writer.Flush(); err != nil {
		c.logger.Errorf("Failed to flush writer after sending Cache Reset PDU: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "flush error")
		return
	}
	c.logger.Info("Cache Reset PDU sent successfully")
}

func (c *Client) sendEndOfDataPDU(session uint16, serial uint32) {
	c.logger.Info("Sending End of Data PDU to client")
	edpu := protocol.NewEndOfDataPDU(
		c.version,
		session,
		serial,
		c.cfg.refreshInterval,
		c.cfg.retryInterval,
		c.cfg.expireInterval,
	)

	if err := edpu.Write(c.writer); err != nil {
		c.logger.Errorf("Failed to write End of Data PDU: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "write error")
		return
	}
	if err := c.writer.Flush(); err != nil {
		c.logger.Errorf("Failed to flush writer after sending End of Data PDU: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "flush error")
		return
	}
	c.logger.Info("End of Data PDU sent successfully")
}

func (c *Client) sendCacheResponse() {
	c.logger.Info("Sending Cache Response PDU to client")
	cpdu := protocol.NewCacheResponsePDU(c.version, c.maintainer.SessionID())
	if err := cpdu.Write(c.writer); err != nil {
		c.logger.Errorf("Failed to write Cache Response PDU: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "write error")
		return
	}
	if err := c.writer.Flush(); err != nil {
		c.logger.Errorf("Failed to flush writer after sending Cache Response PDU: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "flush error")
		return
	}
	c.logger.Info("Cache Response PDU sent successfully")
}

// sendFullState answers a Reset Query: CacheResponse, then one announce
// PDU per current entry, then EndOfData.
func (c *Client) sendFullState() {
	c.logger.Info("Sending full state to client")
	c.sendCacheResponse()

	snap := c.maintainer.Snapshot()
	pdus := stateToPDUs(c.version, snap)
	for _, pdu := range pdus {
		if err := pdu.Write(c.writer); err != nil {
			c.logger.Errorf("Failed to write payload PDU: %v", err)
			c.sendAndCloseError(protocol.ErrCorruptData, "write error")
			return
		}
	}
	if err := c.writer.Flush(); err != nil {
		c.logger.Errorf("Failed to flush writer: %v", err)
		c.sendAndCloseError(protocol.ErrCorruptData, "flush error")
		return
	}

	c.logger.Infof("Sent %d payload PDUs to client %s", len(pdus), c.id)
	c.sendEndOfDataPDU(c.maintainer.SessionID(), snap.Serial)
}

// sendAndCloseError sends a protocol error PDU and closes the connection.
func (c *Client) sendAndCloseError(code uint16, msg string) {
	pdu := protocol.NewErrorReportPDU(c.version, code, nil, []byte(msg))
	if err := pdu.Write(c.writer); err == nil {
		_ = c.writer.Flush()
	}
	c.logger.Warnf("Closing connection due to error: %s", msg)
	c.Close()
}

// isDisconnectError checks whether an error is due to client disconnection.
func isDisconnectError(err error) bool {
	return errors.Is(err, io.EOF) ||
		strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close terminates the client connection and logs the cleanup step.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.logger.Infof("Closing connection to client: %s", c.id)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// notify sends a Serial Notify PDU telling the client a new serial is
// available; the client decides for itself whether and when to refresh.
func (c *Client) notify(session uint16, serial uint32) {
	pdu := protocol.NewSerialNotifyPDU(c.version, session, serial)
	if err := pdu.Write(c.writer); err != nil {
		c.logger.Errorf("Failed to write Serial Notify PDU: %v", err)
		return
	}
	if err := c.writer.Flush(); err != nil {
		c.logger.Errorf("Failed to flush writer after sending Serial Notify PDU: %v", err)
		return
	}
	c.logger.Infof("Sent Serial Notify PDU with serial %d to client %s", serial, c.id)
}
