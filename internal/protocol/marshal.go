package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

func writeFull(w io.Writer, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if err != nil {
			return fmt.Errorf("write error after %d bytes (wanted %d): %w", total, len(buf), err)
		}
		if n == 0 {
			return fmt.Errorf("short write: wrote 0 bytes after %d", total)
		}
		total += n
	}
	return nil
}

func (s *SerialNotifyPDU) Write(w io.Writer) error {
	buf := make([]byte, serialNotifyLength)

	buf[0] = byte(s.version)
	buf[1] = byte(SerialNotify)
	binary.BigEndian.PutUint16(buf[2:], s.session)
	binary.BigEndian.PutUint32(buf[4:], serialNotifyLength)
	binary.BigEndian.PutUint32(buf[8:], s.serial)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write SerialNotifyPDU: %w", err)
	}
	return nil
}

func (s *SerialQueryPDU) Write(w io.Writer) error {
	buf := make([]byte, serialQueryLength)

	buf[0] = byte(s.version)
	buf[1] = byte(SerialQuery)
	binary.BigEndian.PutUint16(buf[2:], s.session)
	binary.BigEndian.PutUint32(buf[4:], serialQueryLength)
	binary.BigEndian.PutUint32(buf[8:], s.serial)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write SerialQueryPDU: %w", err)
	}
	return nil
}

func (r *ResetQueryPDU) Write(w io.Writer) error {
	buf := make([]byte, resetQueryLength)

	buf[0] = byte(r.version)
	buf[1] = byte(ResetQuery)
	binary.BigEndian.PutUint16(buf[2:], 0) // reserved, must be zero
	binary.BigEndian.PutUint32(buf[4:], resetQueryLength)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write ResetQueryPDU: %w", err)
	}
	return nil
}

func (c *CacheResponsePDU) Write(w io.Writer) error {
	buf := make([]byte, cacheResponseLength)

	buf[0] = byte(c.version)
	buf[1] = byte(CacheResponse)
	binary.BigEndian.PutUint16(buf[2:], c.session)
	binary.BigEndian.PutUint32(buf[4:], cacheResponseLength)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write CacheResponsePDU: %w", err)
	}
	return nil
}

func (i *Ipv4PrefixPDU) Write(w io.Writer) error {
	buf := make([]byte, ipv4Length)

	buf[0] = byte(i.version)
	buf[1] = byte(Ipv4Prefix)
	binary.BigEndian.PutUint16(buf[2:], 0) // reserved
	binary.BigEndian.PutUint32(buf[4:], ipv4Length)
	buf[8] = i.flags
	buf[9] = i.min
	buf[10] = i.max
	buf[11] = 0 // reserved
	copy(buf[12:16], i.prefix[:])
	binary.BigEndian.PutUint32(buf[16:], i.asn)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write Ipv4PrefixPDU: %w", err)
	}
	return nil
}

func (i *Ipv6PrefixPDU) Write(w io.Writer) error {
	buf := make([]byte, ipv6Length)

	buf[0] = byte(i.version)
	buf[1] = byte(Ipv6Prefix)
	binary.BigEndian.PutUint16(buf[2:], 0) // reserved
	binary.BigEndian.PutUint32(buf[4:], ipv6Length)
	buf[8] = i.flags
	buf[9] = i.min
	buf[10] = i.max
	buf[11] = 0 // reserved
	copy(buf[12:28], i.prefix[:])
	binary.BigEndian.PutUint32(buf[28:], i.asn)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write Ipv6PrefixPDU: %w", err)
	}
	return nil
}

func (e *EndOfDataPDU) Write(w io.Writer) error {
	if e.version == V0 {
		buf := make([]byte, endOfDataLengthV0)
		buf[0] = byte(e.version)
		buf[1] = byte(EndOfData)
		binary.BigEndian.PutUint16(buf[2:], e.session)
		binary.BigEndian.PutUint32(buf[4:], endOfDataLengthV0)
		binary.BigEndian.PutUint32(buf[8:], e.serial)

		if err := writeFull(w, buf); err != nil {
			return fmt.Errorf("failed to write EndOfDataPDU: %w", err)
		}
		return nil
	}

	buf := make([]byte, endOfDataLengthV1P)
	buf[0] = byte(e.version)
	buf[1] = byte(EndOfData)
	binary.BigEndian.PutUint16(buf[2:], e.session)
	binary.BigEndian.PutUint32(buf[4:], endOfDataLengthV1P)
	binary.BigEndian.PutUint32(buf[8:], e.serial)
	binary.BigEndian.PutUint32(buf[12:], e.refresh)
	binary.BigEndian.PutUint32(buf[16:], e.retry)
	binary.BigEndian.PutUint32(buf[20:], e.expire)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write EndOfDataPDU: %w", err)
	}
	return nil
}

func (c *CacheResetPDU) Write(w io.Writer) error {
	buf := make([]byte, cacheResetLength)

	buf[0] = byte(c.version)
	buf[1] = byte(CacheReset)
	binary.BigEndian.PutUint16(buf[2:], 0) // reserved
	binary.BigEndian.PutUint32(buf[4:], cacheResetLength)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write CacheResetPDU: %w", err)
	}
	return nil
}

func (r *RouterKeyPDU) Write(w io.Writer) error {
	length := routerKeyHeadLength + len(r.spki)
	buf := make([]byte, length)

	buf[0] = byte(r.version)
	buf[1] = byte(RouterKey)
	buf[2] = r.flags
	buf[3] = 0 // reserved
	binary.BigEndian.PutUint32(buf[4:], uint32(length))
	copy(buf[8:28], r.ski[:])
	binary.BigEndian.PutUint32(buf[28:], r.asn)
	if len(r.spki) > 0 {
		copy(buf[32:], r.spki)
	}

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write RouterKeyPDU: %w", err)
	}
	return nil
}

func (e *ErrorReportPDU) Write(w io.Writer) error {
	pduLen := len(e.pdu)
	textLen := len(e.text)
	length := 12 + pduLen + 4 + textLen

	buf := make([]byte, length)

	buf[0] = byte(e.version)
	buf[1] = byte(ErrorReport)
	binary.BigEndian.PutUint16(buf[2:], e.code)
	binary.BigEndian.PutUint32(buf[4:], uint32(length))
	binary.BigEndian.PutUint32(buf[8:], uint32(pduLen))
	copy(buf[12:12+pduLen], e.pdu)

	offset := 12 + pduLen
	binary.BigEndian.PutUint32(buf[offset:], uint32(textLen))
	copy(buf[offset+4:], e.text)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write ErrorReportPDU: %w", err)
	}
	return nil
}

func (a *AspaPDU) Write(w io.Writer) error {
	length := aspaHeadLength + len(a.pasn)*4
	buf := make([]byte, length)

	buf[0] = byte(a.version)
	buf[1] = byte(Aspa)
	binary.BigEndian.PutUint16(buf[2:], 0) // reserved
	binary.BigEndian.PutUint32(buf[4:], uint32(length))
	buf[8] = a.flags
	buf[9] = a.afiFlags
	binary.BigEndian.PutUint16(buf[10:], 0) // reserved
	binary.BigEndian.PutUint32(buf[12:], a.casn)
	for i, pasn := range a.pasn {
		binary.BigEndian.PutUint32(buf[aspaHeadLength+i*4:], pasn)
	}

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("failed to write AspaPDU: %w", err)
	}
	return nil
}
