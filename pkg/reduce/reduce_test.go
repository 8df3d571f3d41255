package reduce

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"k8s.io/apimachinery/pkg/util/sets"
)

func TestCeiling(t *testing.T) {
	for _, tc := range []struct {
		total      uint64
		reducePct  int
		minEntries int
		expected   uint64
	}{
		{total: 3, reducePct: 20, minEntries: 2, expected: 3},     // 3*1.2 truncates to 3
		{total: 11, reducePct: 0, minEntries: 0, expected: 11},    // no headroom
		{total: 104, reducePct: 50, minEntries: 0, expected: 156}, // pct growth
		{total: 2, reducePct: 0, minEntries: 16384, expected: 16384},
		{total: 0, reducePct: 20, minEntries: 0, expected: 0},
	} {
		got := Ceiling(tc.total, tc.reducePct, tc.minEntries)
		if got != tc.expected {
			t.Errorf("Ceiling(%d, %d, %d): expected %d, got %d",
				tc.total, tc.reducePct, tc.minEntries, tc.expected, got)
		}
	}
}

// prefixesAtLengths builds a non-overlapping, non-adjacent fixture with the
// given number of entries for each prefix length, the way an aggregated
// input would present them.
func prefixesAtLengths(t *testing.T, counts map[int]int) []netip.Prefix {
	t.Helper()
	pfxs := []netip.Prefix{}
	group := uint32(0)
	for length, count := range counts {
		// Each length gets its own /5-aligned window, and entries within a
		// window are spaced one block apart so nothing overlaps or touches.
		group++
		for i := uint32(0); i < uint32(count); i++ {
			size := uint32(1) << (32 - length)
			var addr [4]byte
			binary.BigEndian.PutUint32(addr[:], group<<27+i*2*size)
			pfxs = append(pfxs, netip.PrefixFrom(netip.AddrFrom4(addr), length))
		}
	}
	return pfxs
}

func TestReduceLengthsNothingToGain(t *testing.T) {
	// Three /24s with 20% headroom truncates to a ceiling of 3, so the
	// loop never runs.
	pfxs := mkPrefixes(t, "10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24")
	enabled := ReduceLengths(pfxs, 20, 2)

	if !enabled.Equal(sets.NewInt(24)) {
		t.Errorf("expected {24}, got %v", enabled.List())
	}
	for _, pfx := range pfxs {
		if got := SplitPrefix(pfx, enabled); len(got) != 1 || got[0] != pfx {
			t.Errorf("expected %s unchanged, got %v", pfx, got)
		}
	}
}

func TestReduceLengthsRejectsOvershoot(t *testing.T) {
	// One /8 and one /24. The only candidate merge is /8 -> /24 at a cost
	// of 1*(2^16-1) = 65535 entries, far past the ceiling of 3, so the
	// merge is rejected and both lengths survive.
	pfxs := mkPrefixes(t, "10.0.0.0/8", "192.168.0.0/24")
	enabled := ReduceLengths(pfxs, 50, 0)

	if !enabled.Equal(sets.NewInt(8, 24)) {
		t.Errorf("expected {8, 24}, got %v", enabled.List())
	}
	if cost, ok := mergeCost(1, 24-8); !ok || 2+cost <= Ceiling(2, 50, 0) {
		t.Errorf("fixture no longer overshoots: cost %d, ok %v", cost, ok)
	}
}

func TestReduceLengthsMergesWithinCeiling(t *testing.T) {
	// 4 /30s and 100 /32s, ceiling 156. Merging /30 -> /32 costs
	// 4*(2^2-1) = 12 entries, so /30 is eliminated, leaving /32 with
	// 116 entries and no further candidates.
	pfxs := prefixesAtLengths(t, map[int]int{30: 4, 32: 100})
	enabled := ReduceLengths(pfxs, 50, 0)

	if !enabled.Equal(sets.NewInt(32)) {
		t.Errorf("expected {32}, got %v", enabled.List())
	}

	counters := CountByLength(pfxs, enabled)
	if counters[32] != 116 {
		t.Errorf("expected 116 /32 entries after splitting, got %v", counters)
	}
}

func TestReduceLengthsPicksCheapestSource(t *testing.T) {
	// Candidates: /16 -> /18 costs 1*3 = 3, /18 -> /20 costs 100*3 = 300.
	// The /16 merge is applied; the /18 merge would then overshoot the
	// ceiling of 126 and is rejected.
	pfxs := prefixesAtLengths(t, map[int]int{16: 1, 18: 100, 20: 4})
	enabled := ReduceLengths(pfxs, 20, 0)

	if !enabled.Equal(sets.NewInt(18, 20)) {
		t.Errorf("expected {18, 20}, got %v", enabled.List())
	}
}

func TestReduceLengthsTieBreak(t *testing.T) {
	// /10 -> /11 and /11 -> /12 both cost 2 entries; the broader source
	// is preferred on ties, so /10 goes first. After that merge /11 holds
	// 6 entries and eliminating it would cost 6, overshooting the ceiling
	// of 12.
	pfxs := prefixesAtLengths(t, map[int]int{10: 2, 11: 2, 12: 2})
	enabled := ReduceLengths(pfxs, 100, 0)

	if !enabled.Equal(sets.NewInt(11, 12)) {
		t.Errorf("expected {11, 12}, got %v", enabled.List())
	}
}

func TestReduceLengthsMinEntriesFloor(t *testing.T) {
	// With 0% headroom the ceiling would equal the total and nothing
	// could merge, but the entry floor lifts it to 32 and the /20 can be
	// re-expressed as 16 /24s.
	pfxs := prefixesAtLengths(t, map[int]int{20: 1, 24: 1})
	enabled := ReduceLengths(pfxs, 0, 32)

	if !enabled.Equal(sets.NewInt(24)) {
		t.Errorf("expected {24}, got %v", enabled.List())
	}
}

func TestReduceLengthsSingleLength(t *testing.T) {
	pfxs := prefixesAtLengths(t, map[int]int{24: 5})
	enabled := ReduceLengths(pfxs, 100, 1<<20)

	// A single live length has no merge target no matter how much
	// headroom is available.
	if !enabled.Equal(sets.NewInt(24)) {
		t.Errorf("expected {24}, got %v", enabled.List())
	}
}

func TestReduceLengthsEmpty(t *testing.T) {
	enabled := ReduceLengths(nil, 20, 16384)
	if enabled.Len() != 0 {
		t.Errorf("expected empty set, got %v", enabled.List())
	}
}

func TestReduceLengthsHostLengthSurvives(t *testing.T) {
	// The host length has no longer length to merge into, so it can
	// never be eliminated while in use and splitting always terminates.
	pfxs := mkPrefixes(t, "10.0.0.0/30", "10.0.1.1/32")
	enabled := ReduceLengths(pfxs, 1000, 0)

	if !enabled.Has(32) {
		t.Errorf("expected 32 to survive, got %v", enabled.List())
	}
	for _, pfx := range pfxs {
		for _, sub := range SplitPrefix(pfx, enabled) {
			if !enabled.Has(sub.Bits()) {
				t.Errorf("split of %s produced disabled length %d", pfx, sub.Bits())
			}
		}
	}
}

// TestReduceLengthsCeilingRespected sweeps headroom percentages over one
// fixture and verifies that the re-split entry count never exceeds the
// ceiling.
func TestReduceLengthsCeilingRespected(t *testing.T) {
	pfxs := prefixesAtLengths(t, map[int]int{16: 3, 19: 7, 22: 20, 24: 50, 28: 9, 32: 40})
	var initialTotal uint64 = 3 + 7 + 20 + 50 + 9 + 40

	for _, pct := range []int{0, 5, 20, 50, 100, 400} {
		enabled := ReduceLengths(pfxs, pct, 0)

		var total uint64
		for _, count := range CountByLength(pfxs, enabled) {
			total += count
		}
		if acceptable := Ceiling(initialTotal, pct, 0); total > acceptable {
			t.Errorf("pct %d: %d entries exceeds ceiling %d (enabled %v)",
				pct, total, acceptable, enabled.List())
		}
	}
}
