package reduce

import (
	"math"
	"net/netip"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
)

const (
	// DefaultReducePercent is the default acceptable percentage increase
	// in total entry count.
	DefaultReducePercent = 20

	// DefaultMinEntries is the default floor below which the entry count
	// is always considered acceptable.
	DefaultMinEntries = 16384
)

// Ceiling returns the largest acceptable entry count for a set that starts
// out with total entries: total grown by reducePct percent (integer
// arithmetic, truncated), but never less than minEntries.
func Ceiling(total uint64, reducePct, minEntries int) uint64 {
	acceptable := total * uint64(100+reducePct) / 100
	if acceptable < uint64(minEntries) {
		acceptable = uint64(minEntries)
	}
	return acceptable
}

// ReduceLengths computes the set of prefix lengths to keep for pfxs, which
// must already be aggregated (non-overlapping, non-adjacent) and all of one
// address family.
//
// Starting from the lengths actually present in pfxs, it repeatedly
// eliminates the length whose removal is cheapest, re-expressing each of
// its entries as 2^(j-i) entries of the nearest longer enabled length j,
// until the next elimination would push the total entry count past
// Ceiling(total, reducePct, minEntries). Splitting every prefix in pfxs
// over the returned set (see SplitPrefix) preserves exact address coverage.
//
// A length is only ever merged into a strictly longer one, so the host
// length is never eliminated while in use and the returned set always lets
// SplitPrefix terminate. An empty input yields an empty set.
func ReduceLengths(pfxs []netip.Prefix, reducePct, minEntries int) sets.Int {
	// Each aggregated prefix is exactly one entry at its native length.
	counters := map[int]uint64{}
	for _, pfx := range pfxs {
		counters[pfx.Bits()]++
	}

	enabled := sets.NewInt()
	var total uint64
	for length, count := range counters {
		enabled.Insert(length)
		total += count
	}

	acceptable := Ceiling(total, reducePct, minEntries)
	klog.V(2).Infof("Reducing set of %d prefix lengths (%d entries, ceiling %d)",
		enabled.Len(), total, acceptable)

	for total < acceptable {
		var bestSrc, bestDst int
		var bestIncrease uint64
		found := false

		// Scan sources in ascending length order. For each source the only
		// merge target is the nearest longer enabled length that still has
		// entries; anything further would skip over live entries and break
		// the bookkeeping.
		lengths := enabled.List()
		for idx, src := range lengths {
			if counters[src] == 0 {
				continue
			}
			for _, dst := range lengths[idx+1:] {
				if counters[dst] == 0 {
					continue
				}
				increase, ok := mergeCost(counters[src], dst-src)
				// Strict < keeps the broader source on ties. An unpayable
				// cost (doesn't fit in 64 bits) exceeds any ceiling and is
				// never a candidate; its source simply cannot be merged.
				if ok && (!found || increase < bestIncrease) {
					bestSrc, bestDst, bestIncrease = src, dst, increase
					found = true
				}
				break
			}
		}

		if !found {
			klog.V(2).Infof("Nothing more to reduce")
			break
		}

		if bestIncrease > acceptable-total {
			klog.V(2).Infof("Not merging /%d -> /%d: %d+%d entries would exceed ceiling %d",
				bestSrc, bestDst, total, bestIncrease, acceptable)
			break
		}

		klog.V(2).Infof("Merging /%d (%d entries) -> /%d: +%d entries",
			bestSrc, counters[bestSrc], bestDst, bestIncrease)

		counters[bestDst] += bestIncrease + counters[bestSrc]
		counters[bestSrc] = 0
		enabled.Delete(bestSrc)
		total += bestIncrease
	}

	return enabled
}

// mergeCost returns the entry-count increase of re-expressing count entries
// as 2^dist entries each, and whether that product fits in a uint64.
func mergeCost(count uint64, dist int) (uint64, bool) {
	if dist >= 64 {
		return 0, false
	}
	multiplier := uint64(1) << dist
	if count > math.MaxUint64/multiplier {
		return 0, false
	}
	return count * (multiplier - 1), true
}
