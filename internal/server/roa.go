package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/mellowdrifter/rtrsync/internal/state"
)

type roa struct {
	Prefix  netip.Prefix
	ASN     uint32
	MaxMask uint8
}

type Jsonroa struct {
	Prefix string `json:"prefix"`
	Mask   uint8  `json:"maxLength"`
	ASN    any    `json:"asn"`
}

type roas struct {
	Roas []Jsonroa `json:"roas"`
}

type rpkiResponse struct {
	roas
}

func (r roa) Key() string {
	return fmt.Sprintf("%s/%d|%d|%d", r.Prefix.Addr().String(), r.Prefix.Bits(), r.MaxMask, r.ASN)
}

// GetSetOfValidatedROAs returns a slice of ROAs with no duplicates.
// It only appends if the ROA is valid
func GetSetOfValidatedROAs(roas []roa) []roa {
	u := make([]roa, 0, len(roas))
	m := make(map[roa]bool)
	for _, roa := range roas {
		if _, ok := m[roa]; !ok {
			m[roa] = true
			if roa.isValid() {
				u = append(u, roa)
			}
		}
	}
	return u
}

// https://datatracker.ietf.org/doc/html/rfc6482#section-3.3
func (roa *roa) isValid() bool {
	// MaxLength cannot be zero or negative
	// MaxMask is a uint8 so cannot be negative
	if roa.MaxMask == 0 {
		return false
	}

	// MaxLength cannot be smaller than prefix length
	if roa.MaxMask < uint8(roa.Prefix.Bits()) {
		return false
	}

	// MaxLength cannot be larger than the max allowed for that address family
	if roa.Prefix.Addr().Is4() && roa.MaxMask > 32 {
		return false
	} else if roa.MaxMask > 128 {
		return false
	}

	return true
}

// roasToVRPKeys converts a validated ROA slice into the VRPKey set the
// Maintainer tracks membership over.
func roasToVRPKeys(roas []roa) []state.VRPKey {
	keys := make([]state.VRPKey, len(roas))
	for i, r := range roas {
		keys[i] = state.VRPKey{
			ASN:       r.ASN,
			Addr:      r.Prefix.Addr(),
			PrefixLen: uint8(r.Prefix.Bits()),
			MaxLen:    r.MaxMask,
		}
	}
	return keys
}

func fetchROAsFromURL(ctx context.Context, url string) ([]roa, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := http.Client{
		Timeout: 1 * time.Minute,
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	var r rpkiResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	roas := make([]roa, 0, len(r.Roas))
	for _, jr := range r.Roas {
		prefix, err := netip.ParsePrefix(jr.Prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid prefix %q: %w", jr.Prefix, err)
		}
		roas = append(roas, roa{
			Prefix:  prefix,
			MaxMask: jr.Mask,
			ASN:     decodeASN(jr),
		})
	}

	return roas, nil
}

// Some URLs have the AS Number as a number while others as a string.
func decodeASN(data Jsonroa) uint32 {
	switch atype := data.ASN.(type) {
	case string:
		return asnToUint32(atype)
	case float64:
		return uint32(atype)
	}
	return 0
}

// Some json VRPs contain ASXXX instead of just XXX as the ASN
func asnToUint32(a string) uint32 {
	n, err := strconv.Atoi(a[2:])
	if err != nil {
		return 0
	}

	return uint32(n)
}

func (s *Server) loadROAs(ctx context.Context) ([]roa, error) {
	var wg sync.WaitGroup
	roasCh := make(chan []roa, len(s.urls))
	errsCh := make(chan error, len(s.urls))

	fetch := func(url string) {
		defer wg.Done()
		s.logger.Debugf("Fetching ROAs from %s", url)
		roas, err := fetchROAsFromURL(ctx, url)
		if err != nil {
			errsCh <- err
			return
		}
		roasCh <- roas
	}

	wg.Add(len(s.urls))
	for _, url := range s.urls {
		go fetch(url)
	}
	wg.Wait()
	close(roasCh)
	close(errsCh)

	if len(errsCh) > 0 {
		return nil, <-errsCh
	}

	combined := []roa{}
	for r := range roasCh {
		combined = append(combined, r...)
	}

	return GetSetOfValidatedROAs(combined), nil
}

func (s *Server) periodicROAUpdater(ctx context.Context) {
	ticker := time.NewTicker(refreshROA)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Info("Checking for ROA updates...")
			newROAs, err := s.loadROAs(ctx)
			if err != nil {
				s.logger.Errorf("failed to update ROAs: %v", err)
				continue
			}

			serial, changed := s.maintainer.ReplaceVRPFeed(roasToVRPKeys(newROAs))
			if changed {
				s.logger.Infof("VRP feed changed, new serial %d", serial)
				s.notifyAll(serial)
			}
		}
	}
}
