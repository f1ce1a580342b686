package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"slices"
)

// DefaultSupportedVersions is the set this implementation understands:
// RFC 6810 (v0), RFC 8210 (v1), and the ASPA-carrying v2.
var DefaultSupportedVersions = []Version{V0, V1, V2}

// Negotiate peeks the version byte of the next inbound PDU without
// consuming it and checks it against supported. The caller still reads
// the full PDU afterwards via GetPDU.
func Negotiate(r *bufio.Reader, supported []Version) (Version, error) {
	peek, err := r.Peek(1)
	if err != nil {
		return 0, fmt.Errorf("failed to peek version byte: %w", err)
	}
	if len(peek) == 0 {
		return 0, errors.New("no version byte received")
	}
	version := Version(peek[0])
	if !slices.Contains(supported, version) {
		return 0, fmt.Errorf("unsupported version: %d", version)
	}
	return version, nil
}

// Supports reports whether v is present in supported.
func Supports(supported []Version, v Version) bool {
	return slices.Contains(supported, v)
}

// Highest returns the maximum version in supported.
func Highest(supported []Version) Version {
	h := Version(0)
	for _, v := range supported {
		if v > h {
			h = v
		}
	}
	return h
}
