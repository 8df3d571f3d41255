package main

import (
	goflag "flag"
	"os"

	"github.com/spf13/pflag"

	utilflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/logs"

	ipset_reduce "github.com/ipsetutil/ipset-reduce/pkg/cmd/ipset-reduce"
)

func main() {
	logs.InitLogs()
	defer logs.FlushLogs()

	pflag.CommandLine.SetNormalizeFunc(utilflag.WordSepNormalizeFunc)
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)

	cmd := ipset_reduce.NewIPSetReduceCommand("ipset-reduce", os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
