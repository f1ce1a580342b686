package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed is wrapped by every decode failure the codec itself
// detects: short reads, inconsistent lengths, and unknown PDU types are
// all surfaced through this sentinel so callers can errors.Is it.
var ErrMalformed = errors.New("malformed PDU")

// GetPDU reads exactly one PDU from r and returns its decoded form.
func GetPDU(r io.Reader) (PDU, error) {
	bytes, err := getPDUBytes(r)
	if err != nil {
		return nil, fmt.Errorf("failed to get PDU bytes: %w", err)
	}
	pdu, err := decipherPDU(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal PDU: %w", err)
	}
	return pdu, nil
}

// getPDUBytes reads the 8-byte header, validates its length field, then
// reads exactly that many remaining bytes and returns the full PDU.
func getPDUBytes(r io.Reader) ([]byte, error) {
	/*
		0          8          16         24        31
		.-------------------------------------------.
		| Protocol |   PDU    |                     |
		| Version  |   Type   |     Session ID      |
		+-------------------------------------------+
		|                                           |
		|                 Length                    |
		|                                           |
		`-------------------------------------------'
	*/
	buf := make([]byte, minPDULength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read PDU header: %w", err)
	}

	length := binary.BigEndian.Uint32(buf[4:8])
	if length < minPDULength || length > maxPDULength {
		return nil, fmt.Errorf("%w: invalid PDU length %d", ErrMalformed, length)
	}

	payloadLen := int(length) - minPDULength
	if payloadLen > 0 {
		data := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("failed to read PDU payload: %w", err)
		}
		buf = append(buf, data...)
	}

	return buf, nil
}

func decipherPDU(data []byte) (PDU, error) {
	if len(data) < headPDULength {
		return nil, fmt.Errorf("%w: data too short to contain PDU type: %d bytes", ErrMalformed, len(data))
	}

	ver := Version(data[0])
	ptype := PDUType(data[1])

	switch ptype {
	case SerialNotify:
		if len(data) < serialNotifyLength {
			return nil, fmt.Errorf("%w: SerialNotifyPDU too short: %d bytes", ErrMalformed, len(data))
		}
		return NewSerialNotifyPDU(
			ver,
			binary.BigEndian.Uint16(data[2:4]),
			binary.BigEndian.Uint32(data[8:12]),
		), nil

	case SerialQuery:
		if len(data) < serialQueryLength {
			return nil, fmt.Errorf("%w: SerialQueryPDU too short: %d bytes", ErrMalformed, len(data))
		}
		return NewSerialQueryPDU(
			ver,
			binary.BigEndian.Uint16(data[2:4]),
			binary.BigEndian.Uint32(data[8:12]),
		), nil

	case ResetQuery:
		if len(data) < resetQueryLength {
			return nil, fmt.Errorf("%w: ResetQueryPDU too short: %d bytes", ErrMalformed, len(data))
		}
		return NewResetQueryPDU(ver), nil

	case CacheResponse:
		if len(data) < cacheResponseLength {
			return nil, fmt.Errorf("%w: CacheResponsePDU too short: %d bytes", ErrMalformed, len(data))
		}
		return NewCacheResponsePDU(ver, binary.BigEndian.Uint16(data[2:4])), nil

	case Ipv4Prefix:
		if len(data) < ipv4Length {
			return nil, fmt.Errorf("%w: Ipv4PrefixPDU too short: %d bytes", ErrMalformed, len(data))
		}
		var prefix [4]byte
		copy(prefix[:], data[12:16])
		min, max := data[9], data[10]
		if min > max || max > 32 {
			return nil, fmt.Errorf("%w: invalid IPv4 prefix/max length %d/%d", ErrMalformed, min, max)
		}
		return NewIpv4PrefixPDU(ver, data[8], min, max, prefix, binary.BigEndian.Uint32(data[16:20])), nil

	case Ipv6Prefix:
		if len(data) < ipv6Length {
			return nil, fmt.Errorf("%w: Ipv6PrefixPDU too short: %d bytes", ErrMalformed, len(data))
		}
		var prefix [16]byte
		copy(prefix[:], data[12:28])
		min, max := data[9], data[10]
		if min > max || max > 128 {
			return nil, fmt.Errorf("%w: invalid IPv6 prefix/max length %d/%d", ErrMalformed, min, max)
		}
		return NewIpv6PrefixPDU(ver, data[8], min, max, prefix, binary.BigEndian.Uint32(data[28:32])), nil

	case EndOfData:
		if ver == V0 {
			if len(data) < endOfDataLengthV0 {
				return nil, fmt.Errorf("%w: EndOfDataPDU (v0) too short: %d bytes", ErrMalformed, len(data))
			}
			return NewEndOfDataPDU(
				ver,
				binary.BigEndian.Uint16(data[2:4]),
				binary.BigEndian.Uint32(data[8:12]),
				0, 0, 0,
			), nil
		}
		if len(data) < endOfDataLengthV1P {
			return nil, fmt.Errorf("%w: EndOfDataPDU too short: %d bytes", ErrMalformed, len(data))
		}
		return NewEndOfDataPDU(
			ver,
			binary.BigEndian.Uint16(data[2:4]),
			binary.BigEndian.Uint32(data[8:12]),
			binary.BigEndian.Uint32(data[12:16]),
			binary.BigEndian.Uint32(data[16:20]),
			binary.BigEndian.Uint32(data[20:24]),
		), nil

	case CacheReset:
		if len(data) < cacheResetLength {
			return nil, fmt.Errorf("%w: CacheResetPDU too short: %d bytes", ErrMalformed, len(data))
		}
		return NewCacheResetPDU(ver), nil

	case RouterKey:
		if len(data) < routerKeyHeadLength {
			return nil, fmt.Errorf("%w: RouterKeyPDU too short: %d bytes", ErrMalformed, len(data))
		}
		var ski [skiLength]byte
		copy(ski[:], data[8:28])
		asn := binary.BigEndian.Uint32(data[28:32])
		spki := append([]byte(nil), data[32:]...)
		return NewRouterKeyPDU(ver, data[2], ski, asn, spki), nil

	case ErrorReport:
		if len(data) < 12 {
			return nil, fmt.Errorf("%w: ErrorReportPDU too short: %d bytes", ErrMalformed, len(data))
		}
		pduLen := binary.BigEndian.Uint32(data[8:12])
		if pduLen > uint32(len(data)) || int(12+pduLen+4) > len(data) {
			return nil, fmt.Errorf("%w: ErrorReportPDU invalid pduLen: %d", ErrMalformed, pduLen)
		}
		textLen := binary.BigEndian.Uint32(data[12+pduLen : 12+pduLen+4])
		if textLen > uint32(len(data)) || int(12+pduLen+4+textLen) > len(data) {
			return nil, fmt.Errorf("%w: ErrorReportPDU invalid textLen: %d", ErrMalformed, textLen)
		}
		return NewErrorReportPDU(
			ver,
			binary.BigEndian.Uint16(data[2:4]),
			append([]byte(nil), data[12:12+pduLen]...),
			append([]byte(nil), data[12+pduLen+4:12+pduLen+4+textLen]...),
		), nil

	case Aspa:
		if len(data) < aspaHeadLength {
			return nil, fmt.Errorf("%w: AspaPDU too short: %d bytes", ErrMalformed, len(data))
		}
		rem := len(data) - aspaHeadLength
		if rem%4 != 0 {
			return nil, fmt.Errorf("%w: AspaPDU provider list not a multiple of 4 bytes", ErrMalformed)
		}
		flags := data[8]
		afiFlags := data[9]
		casn := binary.BigEndian.Uint32(data[12:16])
		n := rem / 4
		var pasn []uint32
		if n > 0 {
			pasn = make([]uint32, n)
		}
		for i := 0; i < n; i++ {
			pasn[i] = binary.BigEndian.Uint32(data[aspaHeadLength+i*4 : aspaHeadLength+i*4+4])
		}
		if flags&1 == Withdraw && n != 0 {
			return nil, fmt.Errorf("%w: ASPA withdraw must carry an empty provider list", ErrMalformed)
		}
		if flags&1 == Announce && n == 0 {
			return nil, fmt.Errorf("%w: ASPA announce must carry at least one provider", ErrMalformed)
		}
		return NewAspaPDU(ver, flags, afiFlags, casn, pasn), nil

	default:
		return nil, fmt.Errorf("%w: unsupported PDU type: %d", ErrMalformed, ptype)
	}
}
