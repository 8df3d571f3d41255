package ipset_reduce

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	kexec "k8s.io/utils/exec"

	"github.com/ipsetutil/ipset-reduce/pkg/reduce"
	"github.com/ipsetutil/ipset-reduce/pkg/util/aggregate"
	"github.com/ipsetutil/ipset-reduce/pkg/util/setfile"
)

// ipsetReduce stores the options needed to run one reduction from the
// command line.
type ipsetReduce struct {
	reducePct  int
	minEntries int
	onlyV4     bool
	onlyV6     bool
	printStats bool

	printPrefix     string
	printPrefixIPs  string
	printPrefixNets string
	printSuffix     string
	printSuffixIPs  string
	printSuffixNets string

	files []string

	aggregator aggregate.Interface
	in         io.Reader
	out        io.Writer
	errout     io.Writer
}

var ipsetReduceLong = `
Reduce the number of distinct CIDR prefix-lengths in an IP set, trading a
bounded increase in entry count for fewer unique masks. Reads CIDR prefixes
(one per line, IPv4 or IPv6, ipset save format accepted) from FILEs or
stdin and prints the reduced set.
`

func NewIPSetReduceCommand(basename string, in io.Reader, out, errout io.Writer) *cobra.Command {
	options := &ipsetReduce{
		in:     in,
		out:    out,
		errout: errout,
	}

	cmd := &cobra.Command{
		Use:   basename + " [OPTIONS] [FILE ...]",
		Short: "Reduce the number of distinct CIDR prefix-lengths in an IP set",
		Long:  ipsetReduceLong,
		Run: func(c *cobra.Command, args []string) {
			options.files = args
			options.resolveShorthand(c)

			if err := options.Validate(); err != nil {
				klog.Fatal(err)
			}
			if err := options.Run(); err != nil {
				klog.Fatal(err)
			}
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&options.reducePct, "ipset-reduce", reduce.DefaultReducePercent,
		"Acceptable percentage increase in entry count")
	flags.IntVar(&options.minEntries, "ipset-reduce-entries", reduce.DefaultMinEntries,
		"Minimum acceptable number of entries")
	flags.BoolVarP(&options.onlyV4, "only-v4", "4", false, "Process only IPv4 prefixes")
	flags.BoolVarP(&options.onlyV6, "only-v6", "6", false, "Process only IPv6 prefixes")
	flags.BoolVarP(&options.printStats, "print-stats", "v", false, "Print reduction statistics to stderr")
	flags.StringVar(&options.printPrefix, "print-prefix", "",
		"Print STRING before each entry (sets both --print-prefix-ips and --print-prefix-nets)")
	flags.StringVar(&options.printPrefixIPs, "print-prefix-ips", "",
		"Print STRING before single-host entries only")
	flags.StringVar(&options.printPrefixNets, "print-prefix-nets", "",
		"Print STRING before subnet entries only")
	flags.StringVar(&options.printSuffix, "print-suffix", "",
		"Print STRING after each entry (sets both --print-suffix-ips and --print-suffix-nets)")
	flags.StringVar(&options.printSuffixIPs, "print-suffix-ips", "",
		"Print STRING after single-host entries only")
	flags.StringVar(&options.printSuffixNets, "print-suffix-nets", "",
		"Print STRING after subnet entries only")

	return cmd
}

// resolveShorthand makes --print-prefix/--print-suffix override both of
// their specific forms, but only when actually given on the command line.
func (o *ipsetReduce) resolveShorthand(c *cobra.Command) {
	if c.Flags().Changed("print-prefix") {
		o.printPrefixIPs = o.printPrefix
		o.printPrefixNets = o.printPrefix
	}
	if c.Flags().Changed("print-suffix") {
		o.printSuffixIPs = o.printSuffix
		o.printSuffixNets = o.printSuffix
	}
}

func (o *ipsetReduce) Validate() error {
	if o.onlyV4 && o.onlyV6 {
		return fmt.Errorf("--only-v4 and --only-v6 are mutually exclusive")
	}
	if o.reducePct < 0 {
		return fmt.Errorf("--ipset-reduce must not be negative")
	}
	if o.minEntries < 0 {
		return fmt.Errorf("--ipset-reduce-entries must not be negative")
	}
	return nil
}

// Run reads the input, reduces each requested address family independently,
// and prints the re-split entries. Aggregation failure for either family
// aborts the run before anything is printed.
func (o *ipsetReduce) Run() error {
	if o.aggregator == nil {
		o.aggregator = defaultAggregator()
	}

	lines, err := o.readLines()
	if err != nil {
		return err
	}

	tokens := []string{}
	for _, line := range lines {
		if token, ok := setfile.ExtractToken(line); ok {
			tokens = append(tokens, token)
		}
	}
	v4, v6 := setfile.ParsePrefixes(tokens)

	decorator := setfile.Decorator{
		PrefixIPs:  o.printPrefixIPs,
		PrefixNets: o.printPrefixNets,
		SuffixIPs:  o.printSuffixIPs,
		SuffixNets: o.printSuffixNets,
	}

	results := []string{}
	if !o.onlyV6 {
		results, err = o.reduceFamily("IPv4", v4, decorator, results)
		if err != nil {
			return err
		}
	}
	if !o.onlyV4 {
		results, err = o.reduceFamily("IPv6", v6, decorator, results)
		if err != nil {
			return err
		}
	}

	for _, line := range results {
		fmt.Fprintln(o.out, line)
	}
	return nil
}

// reduceFamily runs the aggregate/reduce/split pipeline for one address
// family and appends the decorated output lines to results.
func (o *ipsetReduce) reduceFamily(family string, pfxs []netip.Prefix, decorator setfile.Decorator, results []string) ([]string, error) {
	if len(pfxs) == 0 {
		return results, nil
	}

	aggregated, err := o.aggregator.Aggregate(pfxs)
	if err != nil {
		return nil, fmt.Errorf("%s aggregation failed: %v", family, err)
	}
	klog.V(2).Infof("%s: %d raw prefixes, %d after aggregation", family, len(pfxs), len(aggregated))

	enabled := reduce.ReduceLengths(aggregated, o.reducePct, o.minEntries)

	if o.printStats {
		o.printFamilyStats(family, pfxs, aggregated, enabled)
	}

	for _, pfx := range aggregated {
		for _, sub := range reduce.SplitPrefix(pfx, enabled) {
			results = append(results, decorator.Format(sub))
		}
	}
	return results, nil
}

func (o *ipsetReduce) printFamilyStats(family string, raw, aggregated []netip.Prefix, enabled sets.Int) {
	initial := map[int]uint64{}
	var total uint64
	for _, pfx := range aggregated {
		initial[pfx.Bits()]++
		total++
	}

	fmt.Fprintf(o.errout, "=== %s: %d raw prefixes, %d after aggregation ===\n", family, len(raw), len(aggregated))
	fmt.Fprintf(o.errout, "Initial: %d entries across %d prefix lengths\n", total, len(initial))
	for _, length := range sortedLengths(initial) {
		fmt.Fprintf(o.errout, "  /%d: %d entries\n", length, initial[length])
	}
	fmt.Fprintf(o.errout, "Acceptable ceiling: %d entries\n", reduce.Ceiling(total, o.reducePct, o.minEntries))

	final := reduce.CountByLength(aggregated, enabled)
	var finalTotal uint64
	for _, count := range final {
		finalTotal += count
	}
	fmt.Fprintf(o.errout, "After reduction: %d entries across %d prefix lengths\n", finalTotal, len(final))
	for _, length := range sortedLengths(final) {
		fmt.Fprintf(o.errout, "  /%d: %d entries\n", length, final[length])
	}
}

func sortedLengths(counters map[int]uint64) []int {
	lengths := make([]int, 0, len(counters))
	for length := range counters {
		lengths = append(lengths, length)
	}
	sort.Ints(lengths)
	return lengths
}

// readLines gathers the raw input lines from the given files, with "-"
// (or no files at all) meaning stdin.
func (o *ipsetReduce) readLines() ([]string, error) {
	if len(o.files) == 0 {
		return readAll(o.in)
	}

	lines := []string{}
	for _, path := range o.files {
		if path == "-" {
			stdinLines, err := readAll(o.in)
			if err != nil {
				return nil, err
			}
			lines = append(lines, stdinLines...)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	return lines, nil
}

func readAll(r io.Reader) ([]string, error) {
	lines := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// defaultAggregator prefers the aggregate6 command, falling back to the
// in-process implementation when it is not installed.
func defaultAggregator() aggregate.Interface {
	agg, err := aggregate.New(kexec.New())
	if err != nil {
		klog.V(2).Infof("%v, using in-process aggregation", err)
		return aggregate.NewNative()
	}
	return agg
}
