// internal/ingestapp/app.go
package ingestapp

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"hazpost/internal/cli"
	"hazpost/internal/ingest"
	"hazpost/internal/logging"
	"hazpost/internal/store"
	"hazpost/internal/version"
	"hazpost/internal/writers"
)

type options struct {
	RlzDir    string
	CompatKey string
	Inputs    []string

	Verbose bool
	Quiet   bool
	JSONLog bool
	Version bool
}

func parseArgs(fs *flag.FlagSet, argv []string) (options, error) {
	var opt options
	var help bool

	fs.StringVar(&opt.RlzDir, "rlz-store", "", "realization store directory [*]")
	fs.StringVar(&opt.CompatKey, "compat", "", "compatibility key for all ingested rows [*]")
	var inputs stringSlice
	fs.Var(&inputs, "input", "realization CSV file(s) (repeatable or '-') [*]")

	fs.BoolVar(&opt.Verbose, "verbose", false, "debug logging [false]")
	fs.BoolVar(&opt.Quiet, "quiet", false, "errors only [false]")
	fs.BoolVar(&opt.JSONLog, "log-json", false, "JSON log lines [false]")

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
	if opt.Version {
		return opt, nil
	}
	opt.Inputs = inputs

	switch {
	case opt.RlzDir == "":
		return opt, errors.New("--rlz-store is required")
	case opt.CompatKey == "":
		return opt, errors.New("--compat is required")
	case len(opt.Inputs) == 0:
		return opt, errors.New("at least one --input file is required")
	}
	return opt, nil
}

func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	defer func() { _ = outw.Flush() }()

	fs := cli.NewFlagSet("hazpost-ingest")
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			`hazpost-ingest: load realization curves into a hazpost store

Version: %s

Usage of hazpost-ingest:
`, version.Version)
		fs.PrintDefaults()
	}

	opts, err := parseArgs(fs, argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(outw)
			fs.Usage()
			if e := outw.Flush(); writers.IsBrokenPipe(e) {
				return 0
			} else if e != nil {
				_, _ = fmt.Fprintln(stderr, e)
				return 3
			}
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	if opts.Version {
		_, _ = fmt.Fprintf(outw, "hazpost-ingest version %s\n", version.Version)
		return 0
	}

	log := logging.New(stderr, logging.Config{
		Level: logging.LevelFor(opts.Verbose, opts.Quiet),
		JSON:  opts.JSONLog,
	})

	db, err := store.Open(opts.RlzDir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = db.Close() }()

	total := 0
	for _, path := range opts.Inputs {
		var r io.ReadCloser
		if path == "-" {
			r = io.NopCloser(os.Stdin)
		} else {
			r, err = os.Open(path)
			if err != nil {
				_, _ = fmt.Fprintln(stderr, err)
				return 1
			}
		}
		n, err := ingest.CSV(parent, r, opts.CompatKey, db, log)
		_ = r.Close()
		total += n
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%s: %v\n", path, err)
			return 1
		}
		log.Info("ingested file", "path", path, "rows", n)
	}

	_, _ = fmt.Fprintf(outw, "ingested %d realization rows\n", total)
	return 0
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

// stringSlice allows repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string     { return "" }
func (s *stringSlice) Set(v string) error { *s = append(*s, v); return nil }
