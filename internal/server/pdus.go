package server

import (
	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/mellowdrifter/rtrsync/internal/state"
)

// vrpPDU builds the announce/withdraw PDU for one VRP key at ver.
func vrpPDU(ver protocol.Version, flags uint8, key state.VRPKey) protocol.PDU {
	if key.Addr.Is4() {
		return protocol.NewIpv4PrefixPDU(ver, flags, key.PrefixLen, key.MaxLen, key.Addr.As4(), key.ASN)
	}
	return protocol.NewIpv6PrefixPDU(ver, flags, key.PrefixLen, key.MaxLen, key.Addr.As16(), key.ASN)
}

// routerKeyPDU builds the announce/withdraw PDU for one Router Key at ver.
func routerKeyPDU(ver protocol.Version, flags uint8, key state.RouterKeyKey, spki []byte) protocol.PDU {
	return protocol.NewRouterKeyPDU(ver, flags, key.SKI, key.ASN, spki)
}

// aspaPDU builds the announce/withdraw PDU for one ASPA record at ver.
// A withdraw carries an empty provider list per the wire format.
func aspaPDU(ver protocol.Version, flags uint8, customer uint32, providers []uint32) protocol.PDU {
	if flags == protocol.Withdraw {
		return protocol.NewAspaPDU(ver, flags, 0, customer, nil)
	}
	return protocol.NewAspaPDU(ver, flags, 0, customer, providers)
}

// stateToPDUs renders every entry of st as an announce PDU at ver, for a
// full ResetQuery reply. RouterKey PDUs are v1+ only and ASPA PDUs are
// v2-only; a peer negotiated at an older version never sees them.
func stateToPDUs(ver protocol.Version, st *state.State) []protocol.PDU {
	pdus := make([]protocol.PDU, 0, len(st.VRPs)+len(st.RouterKeys)+len(st.ASPAs))
	for key, count := range st.VRPs {
		for i := 0; i < count; i++ {
			pdus = append(pdus, vrpPDU(ver, protocol.Announce, key))
		}
	}
	if ver >= protocol.V1 {
		for key, spki := range st.RouterKeys {
			pdus = append(pdus, routerKeyPDU(ver, protocol.Announce, key, spki))
		}
	}
	if ver >= protocol.V2 {
		for customer, providers := range st.ASPAs {
			pdus = append(pdus, aspaPDU(ver, protocol.Announce, customer, providers))
		}
	}
	return pdus
}

// deltaToPDUs renders one delta's withdraws then announces as PDUs at
// ver, preserving the order the protocol requires. RouterKey and ASPA
// changes are dropped for peers negotiated below the version that
// introduced them, same as stateToPDUs.
func deltaToPDUs(ver protocol.Version, d delta) []protocol.PDU {
	pdus := make([]protocol.PDU, 0, len(d.vrpDel)+len(d.keyDel)+len(d.aspaDel)+len(d.vrpAdd)+len(d.keyAdd)+len(d.aspaSet))
	for _, k := range d.vrpDel {
		pdus = append(pdus, vrpPDU(ver, protocol.Withdraw, k))
	}
	if ver >= protocol.V1 {
		for _, k := range d.keyDel {
			pdus = append(pdus, routerKeyPDU(ver, protocol.Withdraw, k, nil))
		}
	}
	if ver >= protocol.V2 {
		for _, c := range d.aspaDel {
			pdus = append(pdus, aspaPDU(ver, protocol.Withdraw, c, nil))
		}
	}
	for _, k := range d.vrpAdd {
		pdus = append(pdus, vrpPDU(ver, protocol.Announce, k))
	}
	if ver >= protocol.V1 {
		for _, rk := range d.keyAdd {
			pdus = append(pdus, routerKeyPDU(ver, protocol.Announce, rk.Key, rk.SPKI))
		}
	}
	if ver >= protocol.V2 {
		for _, a := range d.aspaSet {
			pdus = append(pdus, aspaPDU(ver, protocol.Announce, a.Customer, a.Providers))
		}
	}
	return pdus
}
