package testing

import (
	"net/netip"

	"github.com/ipsetutil/ipset-reduce/pkg/util/aggregate"
)

// FakeAggregator is a canned-response implementation of aggregate.Interface.
// If Err is set, every call fails with it. If Prefixes is set, every call
// returns it; otherwise the input is handed back unchanged (useful when the
// fixture is already aggregated).
type FakeAggregator struct {
	Prefixes []netip.Prefix
	Err      error

	// Calls records the input of every Aggregate call, in order.
	Calls [][]netip.Prefix
}

// NewFake returns a pass-through aggregate.Interface
func NewFake() *FakeAggregator {
	return &FakeAggregator{}
}

// Aggregate is part of aggregate.Interface
func (f *FakeAggregator) Aggregate(prefixes []netip.Prefix) ([]netip.Prefix, error) {
	f.Calls = append(f.Calls, prefixes)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Prefixes != nil {
		return f.Prefixes, nil
	}
	return prefixes, nil
}

var _ aggregate.Interface = &FakeAggregator{}
