// Package protocol implements the RTR wire codec: PDU framing, encoding
// and decoding for protocol versions 0, 1 and 2 (RFC 6810, RFC 8210, and
// draft-ietf-sidrops-rtr-rpki-rov's ASPA addition).
package protocol

import "io"

type PDUType uint8

type Version uint8

const (
	// PDU Types
	SerialNotify  PDUType = 0
	SerialQuery   PDUType = 1
	ResetQuery    PDUType = 2
	CacheResponse PDUType = 3
	Ipv4Prefix    PDUType = 4
	Ipv6Prefix    PDUType = 6
	EndOfData     PDUType = 7
	CacheReset    PDUType = 8
	RouterKey     PDUType = 9
	ErrorReport   PDUType = 10
	Aspa          PDUType = 11

	// versions
	V0 Version = 0
	V1 Version = 1
	V2 Version = 2

	// lengths
	minPDULength  = 8
	maxPDULength  = 65535
	headPDULength = 2

	serialNotifyLength  = 12
	serialQueryLength   = 12
	resetQueryLength    = 8
	cacheResponseLength = 8
	ipv4Length          = 20
	ipv6Length          = 32
	cacheResetLength    = 8
	routerKeyHeadLength = 32 // header(8) + ski(20) + asn(4)
	aspaHeadLength      = 16

	endOfDataLengthV0  = 12
	endOfDataLengthV1P = 24

	skiLength = 20

	// flags
	Withdraw uint8 = 0
	Announce uint8 = 1

	// Error Report codes (the subset this implementation sends/recognizes)
	ErrCorruptData                uint16 = 0
	ErrNoDataAvailable            uint16 = 2
	ErrUnsupportedPDUType         uint16 = 3
	ErrUnsupportedProtocolVersion uint16 = 4
	ErrUnexpectedProtocolVersion  uint16 = 8
)

func (t PDUType) String() string {
	switch t {
	case SerialNotify:
		return "SerialNotify"
	case SerialQuery:
		return "SerialQuery"
	case ResetQuery:
		return "ResetQuery"
	case CacheResponse:
		return "CacheResponse"
	case Ipv4Prefix:
		return "IPv4Prefix"
	case Ipv6Prefix:
		return "IPv6Prefix"
	case EndOfData:
		return "EndOfData"
	case CacheReset:
		return "CacheReset"
	case RouterKey:
		return "RouterKey"
	case ErrorReport:
		return "ErrorReport"
	case Aspa:
		return "ASPA"
	default:
		return "Unknown"
	}
}

// PDU is the closed set of wire messages the RTR protocol defines.
type PDU interface {
	Type() PDUType
	Ver() Version
	Write(w io.Writer) error
}

// IsPayload reports whether a PDU type carries an announce/withdraw
// payload (IPv4Prefix, IPv6Prefix, RouterKey, ASPA) as opposed to being a
// framing/control PDU.
func IsPayload(t PDUType) bool {
	switch t {
	case Ipv4Prefix, Ipv6Prefix, RouterKey, Aspa:
		return true
	default:
		return false
	}
}

type SerialNotifyPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |     Session ID      |
		|    X     |    0     |                     |
		+-------------------------------------------+
		|                                           |
		|                Length=12                  |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|               Serial Number               |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	session uint16
	serial  uint32
}

func NewSerialNotifyPDU(ver Version, session uint16, serial uint32) *SerialNotifyPDU {
	return &SerialNotifyPDU{version: ver, session: session, serial: serial}
}

func (s *SerialNotifyPDU) Type() PDUType   { return SerialNotify }
func (s *SerialNotifyPDU) Ver() Version    { return s.version }
func (s *SerialNotifyPDU) Session() uint16 { return s.session }
func (s *SerialNotifyPDU) Serial() uint32  { return s.serial }

type SerialQueryPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |     Session ID      |
		|    X     |    1     |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length=12                 |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|               Serial Number               |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	session uint16
	serial  uint32
}

func NewSerialQueryPDU(ver Version, session uint16, serial uint32) *SerialQueryPDU {
	return &SerialQueryPDU{version: ver, session: session, serial: serial}
}

func (s *SerialQueryPDU) Type() PDUType   { return SerialQuery }
func (s *SerialQueryPDU) Ver() Version    { return s.version }
func (s *SerialQueryPDU) Session() uint16 { return s.session }
func (s *SerialQueryPDU) Serial() uint32  { return s.serial }

type ResetQueryPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |         zero        |
		|    X     |    2     |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length=8                  |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
}

func NewResetQueryPDU(ver Version) *ResetQueryPDU {
	return &ResetQueryPDU{version: ver}
}

func (r *ResetQueryPDU) Type() PDUType { return ResetQuery }
func (r *ResetQueryPDU) Ver() Version  { return r.version }

type CacheResponsePDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |     Session ID      |
		|    X     |    3     |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length=8                  |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	session uint16
}

func NewCacheResponsePDU(ver Version, session uint16) *CacheResponsePDU {
	return &CacheResponsePDU{version: ver, session: session}
}

func (c *CacheResponsePDU) Type() PDUType   { return CacheResponse }
func (c *CacheResponsePDU) Ver() Version    { return c.version }
func (c *CacheResponsePDU) Session() uint16 { return c.session }

type Ipv4PrefixPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |         zero        |
		|    X     |    4     |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length=20                 |
		|                                           |
		+-------------------------------------------+
		|          |  Prefix  |   Max    |          |
		|  Flags   |  Length  |  Length  |   zero   |
		|          |   0..32  |   0..32  |          |
		+-------------------------------------------+
		|                                           |
		|                IPv4 Prefix                |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|         Autonomous System Number          |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	flags   uint8
	min     uint8
	max     uint8
	prefix  [4]byte
	asn     uint32
}

func NewIpv4PrefixPDU(ver Version, flags, min, max uint8, prefix [4]byte, asn uint32) *Ipv4PrefixPDU {
	return &Ipv4PrefixPDU{version: ver, flags: flags, min: min, max: max, prefix: prefix, asn: asn}
}

func (i *Ipv4PrefixPDU) Type() PDUType   { return Ipv4Prefix }
func (i *Ipv4PrefixPDU) Ver() Version    { return i.version }
func (i *Ipv4PrefixPDU) Flags() uint8    { return i.flags }
func (i *Ipv4PrefixPDU) MinLen() uint8   { return i.min }
func (i *Ipv4PrefixPDU) MaxLen() uint8   { return i.max }
func (i *Ipv4PrefixPDU) Prefix() [4]byte { return i.prefix }
func (i *Ipv4PrefixPDU) ASN() uint32     { return i.asn }

type Ipv6PrefixPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |         zero        |
		|    X     |    6     |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length=32                 |
		|                                           |
		+-------------------------------------------+
		|          |  Prefix  |   Max    |          |
		|  Flags   |  Length  |  Length  |   zero   |
		|          |  0..128  |  0..128  |          |
		+-------------------------------------------+
		|                                           |
		+---                                     ---+
		|                                           |
		+---            IPv6 Prefix              ---+
		|                                           |
		+---                                     ---+
		|                                           |
		+-------------------------------------------+
		|                                           |
		|         Autonomous System Number          |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	flags   uint8
	min     uint8
	max     uint8
	prefix  [16]byte
	asn     uint32
}

func NewIpv6PrefixPDU(ver Version, flags, min, max uint8, prefix [16]byte, asn uint32) *Ipv6PrefixPDU {
	return &Ipv6PrefixPDU{version: ver, flags: flags, min: min, max: max, prefix: prefix, asn: asn}
}

func (i *Ipv6PrefixPDU) Type() PDUType    { return Ipv6Prefix }
func (i *Ipv6PrefixPDU) Ver() Version     { return i.version }
func (i *Ipv6PrefixPDU) Flags() uint8     { return i.flags }
func (i *Ipv6PrefixPDU) MinLen() uint8    { return i.min }
func (i *Ipv6PrefixPDU) MaxLen() uint8    { return i.max }
func (i *Ipv6PrefixPDU) Prefix() [16]byte { return i.prefix }
func (i *Ipv6PrefixPDU) ASN() uint32      { return i.asn }

type EndOfDataPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |     Session ID      |
		|    X     |    7     |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length=24                 |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|               Serial Number               |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|              Refresh Interval             |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|               Retry Interval              |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|              Expire Interval              |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	session uint16
	serial  uint32
	refresh uint32
	retry   uint32
	expire  uint32
}

// NewEndOfDataPDU builds an EndOfData PDU. For version 0, refresh/retry/
// expire are not present on the wire and are ignored on Write.
func NewEndOfDataPDU(ver Version, session uint16, serial, refresh, retry, expire uint32) *EndOfDataPDU {
	return &EndOfDataPDU{
		version: ver,
		session: session,
		serial:  serial,
		refresh: refresh,
		retry:   retry,
		expire:  expire,
	}
}

func (e *EndOfDataPDU) Type() PDUType   { return EndOfData }
func (e *EndOfDataPDU) Ver() Version    { return e.version }
func (e *EndOfDataPDU) Session() uint16 { return e.session }
func (e *EndOfDataPDU) Serial() uint32  { return e.serial }
func (e *EndOfDataPDU) Refresh() uint32 { return e.refresh }
func (e *EndOfDataPDU) Retry() uint32   { return e.retry }
func (e *EndOfDataPDU) Expire() uint32  { return e.expire }

type CacheResetPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |         zero        |
		|    X     |    8     |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length=8                  |
		|                                           |
		`-------------------------------------------'
	*/
	version Version
}

func NewCacheResetPDU(ver Version) *CacheResetPDU {
	return &CacheResetPDU{version: ver}
}

func (c *CacheResetPDU) Type() PDUType { return CacheReset }
func (c *CacheResetPDU) Ver() Version  { return c.version }

type RouterKeyPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |     Flags/zero      |
		|    X     |    9     |                     |
		+-------------------------------------------+
		|                                           |
		|                  Length                   |
		|                                           |
		+-------------------------------------------+
		|                                           |
		+---                                     ---+
		|          Subject Key Identifier           |
		+---                                     ---+
		|                                           |
		+---                                     ---+
		|                (20 octets)                |
		+---                                     ---+
		|                                           |
		+-------------------------------------------+
		|                                           |
		|                 AS Number                 |
		|                                           |
		+-------------------------------------------+
		|                                           |
		~          Subject Public Key Info          ~
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	flags   uint8
	ski     [skiLength]byte
	asn     uint32
	spki    []byte
}

func NewRouterKeyPDU(ver Version, flags uint8, ski [skiLength]byte, asn uint32, spki []byte) *RouterKeyPDU {
	return &RouterKeyPDU{version: ver, flags: flags, ski: ski, asn: asn, spki: spki}
}

func (r *RouterKeyPDU) Type() PDUType        { return RouterKey }
func (r *RouterKeyPDU) Ver() Version         { return r.version }
func (r *RouterKeyPDU) Flags() uint8         { return r.flags }
func (r *RouterKeyPDU) SKI() [skiLength]byte { return r.ski }
func (r *RouterKeyPDU) ASN() uint32          { return r.asn }
func (r *RouterKeyPDU) SPKI() []byte         { return r.spki }

type ErrorReportPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |     Error Code      |
		|    X     |    10    |                     |
		+-------------------------------------------+
		|                                           |
		|                  Length                   |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|       Length of Encapsulated PDU          |
		|                                           |
		+-------------------------------------------+
		|                                           |
		~               Erroneous PDU               ~
		|                                           |
		+-------------------------------------------+
		|                                           |
		|           Length of Error Text            |
		|                                           |
		+-------------------------------------------+
		|                                           |
		|              Arbitrary Text               |
		|                    of                     |
		~          Error Diagnostic Message         ~
		|                                           |
		`-------------------------------------------'
	*/
	version Version
	code    uint16
	pdu     []byte
	text    []byte
}

func NewErrorReportPDU(ver Version, code uint16, pdu []byte, text []byte) *ErrorReportPDU {
	return &ErrorReportPDU{version: ver, code: code, pdu: pdu, text: text}
}

func (e *ErrorReportPDU) Type() PDUType { return ErrorReport }
func (e *ErrorReportPDU) Ver() Version  { return e.version }
func (e *ErrorReportPDU) Code() uint16  { return e.code }
func (e *ErrorReportPDU) PDU() []byte   { return e.pdu }
func (e *ErrorReportPDU) Text() string  { return string(e.text) }

type AspaPDU struct {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |       reserved      |
		|    x     |    11    |                     |
		+-------------------------------------------+
		|                                           |
		|                 Length                    |
		|                                           |
		+-------------------------------------------+
		|  Flags   | AFI Flags|       reserved       |
		+-------------------------------------------+
		|                                           |
		|    Customer Autonomous System Number      |
		|                                           |
		+-------------------------------------------+
		|                                           |
		~    Provider Autonomous System Numbers     ~
		|                                           |
		`-------------------------------------------'
	*/
	version  Version
	flags    uint8
	afiFlags uint8
	casn     uint32
	pasn     []uint32
}

// NewAspaPDU builds an ASPA PDU. Per spec, a withdraw (flags&1==0) must
// carry an empty provider list and an announce must carry at least one;
// callers are expected to uphold this, the codec does not enforce it on
// encode (it does on decode, see decipherPDU).
func NewAspaPDU(ver Version, flags, afiFlags uint8, casn uint32, pasn []uint32) *AspaPDU {
	return &AspaPDU{version: ver, flags: flags, afiFlags: afiFlags, casn: casn, pasn: pasn}
}

func (a *AspaPDU) Type() PDUType          { return Aspa }
func (a *AspaPDU) Ver() Version           { return a.version }
func (a *AspaPDU) Flags() uint8           { return a.flags }
func (a *AspaPDU) AFIFlags() uint8        { return a.afiFlags }
func (a *AspaPDU) CustomerASN() uint32    { return a.casn }
func (a *AspaPDU) ProviderASNs() []uint32 { return a.pasn }
