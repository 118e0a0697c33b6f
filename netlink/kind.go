// Copyright 2017 Microsoft. All rights reserved.
// MIT License

package netlink

// LinkKind classifies a link by the IFLA_INFO_KIND the kernel reports for it.
// The known kinds form a closed set; anything else is carried as Other with
// the raw kernel string.
type LinkKind struct {
	known knownKind
	raw   string
}

type knownKind int

const (
	kindOther knownKind = iota
	kindDummy
	kindIfb
	kindBridge
	kindTun
	kindNlmon
	kindVlan
	kindVeth
	kindVxlan
	kindBond
	kindIPVlan
	kindMacVlan
	kindMacVtap
	kindGreTap
	kindGreTap6
	kindIPTun
	kindSitTun
	kindGreTun
	kindGreTun6
	kindVti
	kindVrf
	kindGtp
)

// Known link kinds.
var (
	LinkKindDummy   = LinkKind{known: kindDummy}
	LinkKindIfb     = LinkKind{known: kindIfb}
	LinkKindBridge  = LinkKind{known: kindBridge}
	LinkKindTun     = LinkKind{known: kindTun}
	LinkKindNlmon   = LinkKind{known: kindNlmon}
	LinkKindVlan    = LinkKind{known: kindVlan}
	LinkKindVeth    = LinkKind{known: kindVeth}
	LinkKindVxlan   = LinkKind{known: kindVxlan}
	LinkKindBond    = LinkKind{known: kindBond}
	LinkKindIPVlan  = LinkKind{known: kindIPVlan}
	LinkKindMacVlan = LinkKind{known: kindMacVlan}
	LinkKindMacVtap = LinkKind{known: kindMacVtap}
	LinkKindGreTap  = LinkKind{known: kindGreTap}
	LinkKindGreTap6 = LinkKind{known: kindGreTap6}
	LinkKindIPTun   = LinkKind{known: kindIPTun}
	LinkKindSitTun  = LinkKind{known: kindSitTun}
	LinkKindGreTun  = LinkKind{known: kindGreTun}
	LinkKindGreTun6 = LinkKind{known: kindGreTun6}
	LinkKindVti     = LinkKind{known: kindVti}
	LinkKindVrf     = LinkKind{known: kindVrf}
	LinkKindGtp     = LinkKind{known: kindGtp}
)

// kernel IFLA_INFO_KIND identifiers
var kernelKinds = map[string]knownKind{
	"dummy":     kindDummy,
	"ifb":       kindIfb,
	"bridge":    kindBridge,
	"tun":       kindTun,
	"nlmon":     kindNlmon,
	"vlan":      kindVlan,
	"veth":      kindVeth,
	"vxlan":     kindVxlan,
	"bond":      kindBond,
	"ipvlan":    kindIPVlan,
	"macvlan":   kindMacVlan,
	"macvtap":   kindMacVtap,
	"gretap":    kindGreTap,
	"ip6gretap": kindGreTap6,
	"ipip":      kindIPTun,
	"sit":       kindSitTun,
	"gre":       kindGreTun,
	"ip6gre":    kindGreTun6,
	"vti":       kindVti,
	"vrf":       kindVrf,
	"gtp":       kindGtp,
}

var kindNames = map[knownKind]string{
	kindDummy:   "Dummy",
	kindIfb:     "Ifb",
	kindBridge:  "Bridge",
	kindTun:     "Tun",
	kindNlmon:   "Nlmon",
	kindVlan:    "Vlan",
	kindVeth:    "Veth",
	kindVxlan:   "Vxlan",
	kindBond:    "Bond",
	kindIPVlan:  "IpVlan",
	kindMacVlan: "MacVlan",
	kindMacVtap: "MacVtap",
	kindGreTap:  "GreTap",
	kindGreTap6: "GreTap6",
	kindIPTun:   "IpTun",
	kindSitTun:  "SitTun",
	kindGreTun:  "GreTun",
	kindGreTun6: "GreTun6",
	kindVti:     "Vti",
	kindVrf:     "Vrf",
	kindGtp:     "Gtp",
}

// ParseLinkKind maps a kernel kind identifier to a LinkKind.
func ParseLinkKind(raw string) LinkKind {
	if k, ok := kernelKinds[raw]; ok {
		return LinkKind{known: k, raw: raw}
	}
	return OtherLinkKind(raw)
}

// OtherLinkKind wraps a kind identifier outside the known set.
func OtherLinkKind(raw string) LinkKind {
	return LinkKind{known: kindOther, raw: raw}
}

// IsOther reports whether the kind is outside the known set.
func (k LinkKind) IsOther() bool {
	return k.known == kindOther
}

// Raw returns the identifier the kernel reported, if any.
func (k LinkKind) Raw() string {
	return k.raw
}

// Equal compares kinds by classification; known kinds ignore the raw string.
func (k LinkKind) Equal(o LinkKind) bool {
	if k.known != o.known {
		return false
	}
	return k.known != kindOther || k.raw == o.raw
}

// String returns the canonical display name, or the raw kernel string for Other.
func (k LinkKind) String() string {
	if k.known == kindOther {
		return k.raw
	}
	return kindNames[k.known]
}

// MarshalText implements encoding.TextMarshaler.
func (k LinkKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
