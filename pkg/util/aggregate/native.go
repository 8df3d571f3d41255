package aggregate

import (
	"net/netip"

	"go4.org/netipx"
)

// nativeAggregator implements Interface in-process, with the same
// merge-and-coalesce semantics as aggregate6.
type nativeAggregator struct{}

// NewNative returns an Interface that does not depend on the aggregate6
// command being installed.
func NewNative() Interface {
	return nativeAggregator{}
}

func (nativeAggregator) Aggregate(prefixes []netip.Prefix) ([]netip.Prefix, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}

	var builder netipx.IPSetBuilder
	for _, pfx := range prefixes {
		builder.AddPrefix(pfx.Masked())
	}
	set, err := builder.IPSet()
	if err != nil {
		return nil, err
	}
	return set.Prefixes(), nil
}
