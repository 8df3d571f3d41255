package reduce

import (
	"net/netip"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
)

// SplitPrefix decomposes pfx into the smallest list of sub-prefixes whose
// lengths are all in enabled, in ascending address order.
//
// If pfx's own length is enabled the result is just pfx. Otherwise pfx is
// split into its two halves at length+1 and each half is processed
// recursively. Recursion depth is bounded by the address width, so a /0
// split down to host entries still stays within 128 frames (though the
// output of such a split would be astronomically large; ReduceLengths never
// produces an enabled set that requires it).
func SplitPrefix(pfx netip.Prefix, enabled sets.Int) []netip.Prefix {
	if enabled.Has(pfx.Bits()) {
		return []netip.Prefix{pfx}
	}

	if pfx.Bits() >= pfx.Addr().BitLen() {
		// A host prefix cannot be split further. ReduceLengths never
		// disables a length that still has entries without enabling a
		// longer one, so getting here means the enabled set did not come
		// from ReduceLengths.
		klog.Errorf("Cannot split %s: no usable prefix length enabled", pfx)
		return []netip.Prefix{pfx}
	}

	lower, upper := halves(pfx)
	return append(SplitPrefix(lower, enabled), SplitPrefix(upper, enabled)...)
}

// halves returns the two (length+1)-bit prefixes that together cover
// exactly the addresses of pfx, lower half first.
func halves(pfx netip.Prefix) (netip.Prefix, netip.Prefix) {
	bits := pfx.Bits()

	// The upper half is the base address with bit number `bits` (counting
	// from the most significant bit) set.
	if pfx.Addr().Is4() {
		addr := pfx.Addr().As4()
		addr[bits/8] |= 0x80 >> (bits % 8)
		return netip.PrefixFrom(pfx.Addr(), bits+1),
			netip.PrefixFrom(netip.AddrFrom4(addr), bits+1)
	}

	addr := pfx.Addr().As16()
	addr[bits/8] |= 0x80 >> (bits % 8)
	return netip.PrefixFrom(pfx.Addr(), bits+1),
		netip.PrefixFrom(netip.AddrFrom16(addr), bits+1)
}

// CountByLength tallies, per prefix length, how many entries splitting
// every prefix in pfxs over enabled would produce.
func CountByLength(pfxs []netip.Prefix, enabled sets.Int) map[int]uint64 {
	counters := map[int]uint64{}
	for _, pfx := range pfxs {
		for _, sub := range SplitPrefix(pfx, enabled) {
			counters[sub.Bits()]++
		}
	}
	return counters
}
