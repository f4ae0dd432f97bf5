// Package hashkey computes the stable, keyed 64-bit hashes used as index
// keys throughout the store: identifier hashes, tag hashes, and the
// specifier/selector/query hashes used to fingerprint a query shape.
package hashkey

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// seed is a fixed compile-time constant so hashes are reproducible across
// process runs and across machines. xxhash/v2 exposes no native seed
// parameter, so keying is done by hashing the seed bytes ahead of the
// value, the same trick used to build a keyed MAC out of an unkeyed
// primitive.
var seed = [8]byte{0x45, 0x56, 0x54, 0x52, 0x49, 0x43, 0x30, 0x31} // "EVTRIC01"

// Domain bytes separate the hash spaces, so the same string used as an
// identifier and as a tag never produces the same key.
const (
	domainIdentifier byte = 'I'
	domainTag        byte = 'T'
	domainSpecifier  byte = 'S'
	domainSelector   byte = 'L'
	domainQuery      byte = 'Q'
)

// Of returns the keyed 64-bit hash of b, with no domain separation.
func Of(b []byte) uint64 {
	d := xxhash.New()
	d.Write(seed[:])
	d.Write(b)
	return d.Sum64()
}

// String hashes the UTF-8 bytes of s.
func String(s string) uint64 {
	return Of([]byte(s))
}

func keyed(domain byte, b []byte) uint64 {
	d := xxhash.New()
	d.Write(seed[:])
	d.Write([]byte{domain})
	d.Write(b)
	return d.Sum64()
}

// Identifier hashes an event identifier string.
func Identifier(identifier string) uint64 {
	return keyed(domainIdentifier, []byte(identifier))
}

// Tag hashes a tag string.
func Tag(tag string) uint64 {
	return keyed(domainTag, []byte(tag))
}

// VersionRange is the half-open version interval [Min, Max) used by a
// Specifier. A nil upper bound (Max == nil) means unbounded above.
type VersionRange struct {
	Min uint64
	Max *uint64
}

// Specifier hashes the combination of an identifier and its optional
// version-range filter, used to fingerprint one OR-leaf of a Specifiers
// selector.
func Specifier(identifier string, r *VersionRange) uint64 {
	d := xxhash.New()
	d.Write(seed[:])
	d.Write([]byte{domainSpecifier})
	d.Write([]byte(identifier))
	if r != nil {
		var buf [17]byte
		buf[0] = 1
		putUint64(buf[1:9], r.Min)
		if r.Max != nil {
			buf[0] = 2
			putUint64(buf[9:17], *r.Max)
		}
		d.Write(buf[:])
	}
	return d.Sum64()
}

// Selector hashes one selector: its kind tag plus the order-independent
// set of its member hashes (specifier hashes and/or tag hashes). Members
// are sorted before hashing so two selectors naming the same members in a
// different order fingerprint identically.
func Selector(kind uint8, members []uint64) uint64 {
	return set(domainSelector, kind, members)
}

// Query hashes the canonicalised, order-independent set of a query's
// selector hashes.
func Query(selectorHashes []uint64) uint64 {
	return set(domainQuery, 0, selectorHashes)
}

func set(domain byte, kind uint8, members []uint64) uint64 {
	sorted := append([]uint64(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	d := xxhash.New()
	d.Write(seed[:])
	d.Write([]byte{domain, kind})
	var buf [8]byte
	for _, m := range sorted {
		putUint64(buf[:], m)
		d.Write(buf[:])
	}
	return d.Sum64()
}

func putUint64(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}
