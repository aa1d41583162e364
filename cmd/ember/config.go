// Command-line configuration. Grounded on kristofer-smog/cmd/smog/main.go's
// argv dispatch (no file means REPL, a path means run it) but trimmed to
// the flag set this interpreter actually needs; flags are parsed with the
// standard library's flag package, which is what the teacher and every
// other example repo in the pack already reach for at the CLI boundary.
package main

import (
	"flag"
	"fmt"
	"os"
)

type config struct {
	trace    bool
	stressGC bool
	quiet    bool
	file     string
}

func parseConfig(args []string) (*config, error) {
	fs := flag.NewFlagSet("ember", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cfg := &config{}
	fs.BoolVar(&cfg.trace, "trace", false, "print each executed instruction and stack state to stderr")
	fs.BoolVar(&cfg.stressGC, "stress-gc", false, "collect on every allocation (exercises GC correctness over throughput)")
	fs.BoolVar(&cfg.quiet, "quiet", false, "suppress ambient logging (REPL session start/stop; GC cycle and native registration events are debug-level and not shown)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ember [flags] [script]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) > 1 {
		return nil, fmt.Errorf("Usage: ember [flags] [script]")
	}
	if len(rest) == 1 {
		cfg.file = rest[0]
	}
	return cfg, nil
}
