package aggregate

import (
	"bytes"
	"fmt"
	"net/netip"
	"strings"

	"k8s.io/klog/v2"
	"k8s.io/utils/exec"
)

// Interface merges a list of prefixes, all of one address family, into the
// minimal equivalent set of non-overlapping, non-adjacent prefixes.
type Interface interface {
	// Aggregate returns the canonical minimal covering set for prefixes.
	// The output covers exactly the same addresses as the input.
	Aggregate(prefixes []netip.Prefix) ([]netip.Prefix, error)
}

const aggregateCmd = "aggregate6"

// execAggregator implements Interface via calls to aggregate6
type execAggregator struct {
	execer exec.Interface
}

// New returns an Interface backed by the aggregate6 command
func New(execer exec.Interface) (Interface, error) {
	if _, err := execer.LookPath(aggregateCmd); err != nil {
		return nil, fmt.Errorf("%s is not installed", aggregateCmd)
	}
	return &execAggregator{execer: execer}, nil
}

func (agg *execAggregator) Aggregate(prefixes []netip.Prefix) ([]netip.Prefix, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}

	familyArg := "-6"
	if prefixes[0].Addr().Is4() {
		familyArg = "-4"
	}

	lines := make([]string, 0, len(prefixes))
	for _, pfx := range prefixes {
		lines = append(lines, pfx.String())
	}
	stdin := strings.Join(lines, "\n") + "\n"

	klog.V(4).Infof("Executing: %s %s <<\n%s", aggregateCmd, familyArg, stdin)

	kcmd := agg.execer.Command(aggregateCmd, familyArg)
	kcmd.SetStdin(bytes.NewBufferString(stdin))
	output, err := kcmd.Output()
	if err != nil {
		klog.Errorf("Error executing cmd: %s %s, output: \n%s", aggregateCmd, familyArg, string(output))
		return nil, fmt.Errorf("%s failed: %v", aggregateCmd, err)
	}

	return parsePrefixLines(string(output))
}

// parsePrefixLines parses one prefix per line, as printed by aggregate6.
// Bare addresses are taken as host prefixes.
func parsePrefixLines(output string) ([]netip.Prefix, error) {
	var result []netip.Prefix
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pfx, err := netip.ParsePrefix(line)
		if err != nil {
			addr, err := netip.ParseAddr(line)
			if err != nil {
				return nil, fmt.Errorf("unparseable %s output line %q", aggregateCmd, line)
			}
			pfx = netip.PrefixFrom(addr, addr.BitLen())
		}
		result = append(result, pfx.Masked())
	}
	return result, nil
}
