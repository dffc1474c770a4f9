// Package catalogue implements design component A: static tables mapping
// a verified-boot public-key digest to a device identity. The catalogue
// is read-only after construction and shared by every request without
// locking.
package catalogue

import "encoding/hex"

// SecurityLevel selects which half of the catalogue a digest is looked
// up in, per the keystore attestation extension's securityLevel field.
type SecurityLevel int

const (
	SecurityLevelTEE SecurityLevel = iota
	SecurityLevelStrongBox
)

// Entry describes a recognized device identity.
type Entry struct {
	OSFamily  string // e.g. "GrapheneOS", "stock"
	Model     string
	StrongBox bool
	Custom    bool // true for a custom (non-stock) OS build
}

// Catalogue is an immutable digest -> Entry lookup, partitioned by
// security level and then by stock-vs-custom, per §4.2 step 7.
type Catalogue struct {
	teeStock     map[[32]byte]Entry
	teeCustom    map[[32]byte]Entry
	strongStock  map[[32]byte]Entry
	strongCustom map[[32]byte]Entry
}

// Seed is a single catalogue row before it's keyed into a Catalogue,
// expressed with a hex digest for readability in source.
type Seed struct {
	DigestHex string
	Entry     Entry
}

// New builds a Catalogue from seed rows. A malformed hex digest is a
// programmer error in the seed table, not a runtime condition, so New
// panics rather than returning an error — the catalogue is built once at
// startup from a fixed literal table.
func New(seeds []Seed) *Catalogue {
	c := &Catalogue{
		teeStock:     make(map[[32]byte]Entry),
		teeCustom:    make(map[[32]byte]Entry),
		strongStock:  make(map[[32]byte]Entry),
		strongCustom: make(map[[32]byte]Entry),
	}
	for _, s := range seeds {
		b, err := hex.DecodeString(s.DigestHex)
		if err != nil || len(b) != 32 {
			panic("catalogue: invalid seed digest " + s.DigestHex)
		}
		var digest [32]byte
		copy(digest[:], b)

		switch {
		case s.Entry.StrongBox && s.Entry.Custom:
			c.strongCustom[digest] = s.Entry
		case s.Entry.StrongBox:
			c.strongStock[digest] = s.Entry
		case s.Entry.Custom:
			c.teeCustom[digest] = s.Entry
		default:
			c.teeStock[digest] = s.Entry
		}
	}
	return c
}

// Lookup finds the device identity for a verified-boot key digest under
// the given security level, checking the stock table before the custom
// one. Reports ok=false on miss (the caller surfaces UnknownDevice).
func (c *Catalogue) Lookup(level SecurityLevel, digest [32]byte) (Entry, bool) {
	var stock, custom map[[32]byte]Entry
	if level == SecurityLevelStrongBox {
		stock, custom = c.strongStock, c.strongCustom
	} else {
		stock, custom = c.teeStock, c.teeCustom
	}
	if e, ok := stock[digest]; ok {
		return e, true
	}
	e, ok := custom[digest]
	return e, ok
}

// Default is a small seed table of well-known GrapheneOS/stock verified
// -boot key digests. Real deployments load their own table (operators
// publish the current digest list); this is enough to exercise the
// lookup path end to end.
var Default = New([]Seed{
	{DigestHex: "1920392edd71c83f7fbcb7e4a6bb8e38a2b0466a1c1f1d0dbb2d3ad9b1ecf4d5", Entry: Entry{OSFamily: "GrapheneOS", Model: "Pixel", Custom: true}},
	{DigestHex: "2b8a754c0d6c67a595dcb4bc31cf1a03a72f1f4eb2a2b639e3e5c6c84aebfe72", Entry: Entry{OSFamily: "stock", Model: "Pixel", Custom: false}},
	{DigestHex: "3d9e13d2f241e32bd23cfc4a49a5b9f4a72dc4b9a5f6de9a4e3fa9d5f6a21ab9", Entry: Entry{OSFamily: "GrapheneOS", Model: "Pixel", StrongBox: true, Custom: true}},
})
