// internal/cli/options.go

// Package cli parses the hazpost command line. Parsing never writes to
// the flag set's output directly; the app layer decides where usage text
// goes and which exit code a parse failure maps to.
package cli

import (
	"errors"
	"flag"
	"fmt"

	"hazpost/internal/version"
)

// NewFlagSet returns a FlagSet that reports errors instead of exiting
// and stays silent until the app layer installs the usage text.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {}
	return fs
}

// Options holds all CLI flags and arguments.
type Options struct {
	JobFile string

	// Spec overrides
	Workers int  // 0 = use spec value
	DryRun  bool // skip saving, print curves on stdout

	// Dry-run curve output
	Output string // text | jsonl

	// Logging
	Verbose bool
	Quiet   bool
	JSONLog bool

	ListRegions bool
	Version     bool
}

// Usage installs the custom help text on fs.
func Usage(fs *flag.FlagSet, name string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			`%s: probabilistic seismic hazard curve aggregation

Version: %s

Usage of %s:
`, name, version.Version, name)
		fs.PrintDefaults()
	}
}

// ParseArgs registers and parses all flags, returns an Options struct.
func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	var opt Options
	var help bool

	fs.StringVar(&opt.JobFile, "job", "", "YAML job specification [*]")
	fs.StringVar(&opt.JobFile, "j", "", "YAML job specification (shorthand) [*]")

	fs.IntVar(&opt.Workers, "workers", 0, "worker count override (0 = spec value or all CPUs) [0]")
	fs.BoolVar(&opt.DryRun, "dry-run", false, "aggregate without saving; print curves on stdout [false]")
	fs.StringVar(&opt.Output, "output", "text", "dry-run curve format: text | jsonl [text]")

	fs.BoolVar(&opt.Verbose, "verbose", false, "debug logging [false]")
	fs.BoolVar(&opt.Quiet, "quiet", false, "errors only [false]")
	fs.BoolVar(&opt.JSONLog, "log-json", false, "JSON log lines [false]")

	fs.BoolVar(&opt.ListRegions, "list-regions", false, "list leaked shared regions and exit [false]")

	fs.BoolVar(&opt.Version, "v", false, "print version and exit (shorthand) [false]")
	fs.BoolVar(&opt.Version, "version", false, "print version and exit [false]")
	fs.BoolVar(&help, "h", false, "show this help message (shorthand) [false]")

	if err := fs.Parse(argv); err != nil {
		return opt, err
	}
	if help {
		fs.Usage()
		return opt, flag.ErrHelp
	}
	if opt.Version || opt.ListRegions {
		return opt, nil
	}

	// Validation
	if opt.JobFile == "" {
		return opt, errors.New("--job is required")
	}
	if opt.Workers < 0 {
		return opt, errors.New("--workers must be ≥ 0")
	}
	if opt.Output != "text" && opt.Output != "jsonl" {
		return opt, fmt.Errorf("invalid --output %q", opt.Output)
	}
	if opt.Verbose && opt.Quiet {
		return opt, errors.New("--verbose conflicts with --quiet")
	}
	return opt, nil
}
