package setfile

import (
	"net/netip"
	"strings"

	"k8s.io/klog/v2"
)

// setfile contains the plumbing around the reduction core: extracting
// prefix literals from ipset-save-style input, partitioning them by address
// family, and decorating output lines.

// ExtractToken returns the address-range literal carried by one input line,
// or ok=false for blank lines, comments, and truncated add/create lines.
//
// Lines of the form "add <setname> <cidr>" or "create <setname> ..." (ipset
// save format) yield their third token; anything else yields its first
// whitespace-delimited token.
func ExtractToken(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
		return "", false
	}

	fields := strings.Fields(line)
	if fields[0] == "add" || fields[0] == "create" {
		if len(fields) < 3 {
			return "", false
		}
		return fields[2], true
	}
	return fields[0], true
}

// ParsePrefixes parses the given address-range literals and partitions them
// by address family. Bare addresses are taken as host prefixes, and host
// bits under the mask are cleared. Malformed literals are skipped with a
// warning; they never abort the run.
func ParsePrefixes(tokens []string) (v4, v6 []netip.Prefix) {
	for _, token := range tokens {
		pfx, err := netip.ParsePrefix(token)
		if err != nil {
			addr, err := netip.ParseAddr(token)
			if err != nil {
				klog.Warningf("Skipping invalid entry: %s", token)
				continue
			}
			pfx = netip.PrefixFrom(addr, addr.BitLen())
		}
		pfx = pfx.Masked()
		if pfx.Addr().Is4() {
			v4 = append(v4, pfx)
		} else {
			v6 = append(v6, pfx)
		}
	}
	return v4, v6
}

// Decorator wraps output entries with caller-supplied strings, chosen
// independently for host entries (/32 or /128) and subnet entries.
type Decorator struct {
	PrefixIPs  string
	PrefixNets string
	SuffixIPs  string
	SuffixNets string
}

// Format returns the decorated output line for pfx, without a newline.
func (d Decorator) Format(pfx netip.Prefix) string {
	if pfx.IsSingleIP() {
		return d.PrefixIPs + pfx.String() + d.SuffixIPs
	}
	return d.PrefixNets + pfx.String() + d.SuffixNets
}
