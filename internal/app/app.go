// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"hazpost-core/registry"

	"hazpost/internal/cli"
	"hazpost/internal/dispatch"
	"hazpost/internal/jobspec"
	"hazpost/internal/logging"
	"hazpost/internal/shmem"
	"hazpost/internal/store"
	"hazpost/internal/version"
	"hazpost/internal/writers"
)

// Exit codes: 0 success, 1 runtime or partial failure, 2 usage error,
// 3 output write error. SIGINT is normalized to 130 by the shell.

func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	defer func() { _ = outw.Flush() }()

	fs := cli.NewFlagSet("hazpost")
	fs.SetOutput(io.Discard)
	cli.Usage(fs, "hazpost")

	opts, err := cli.ParseArgs(fs, argv)
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
		fs.SetOutput(outw)
		fs.Usage()
		if e := outw.Flush(); writers.IsBrokenPipe(e) {
			return 0
		} else if e != nil {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
		return 2
	}

	if opts.Version {
		_, _ = fmt.Fprintf(outw, "hazpost version %s\n", version.Version)
		if e := outw.Flush(); writers.IsBrokenPipe(e) {
			return 0
		} else if e != nil {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
		return 0
	}

	log := logging.New(stderr, logging.Config{
		Level: logging.LevelFor(opts.Verbose, opts.Quiet),
		JSON:  opts.JSONLog,
	})

	if opts.ListRegions {
		names, err := shmem.List(shmem.DefaultDir())
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		for _, n := range names {
			_, _ = fmt.Fprintln(outw, n)
		}
		if e := outw.Flush(); e != nil && !writers.IsBrokenPipe(e) {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
		return 0
	}

	spec, err := jobspec.Load(opts.JobFile)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.Workers > 0 {
		spec.Workers = opts.Workers
	}
	if opts.DryRun {
		spec.SkipSave = true
	}

	rlz, err := store.Open(spec.RlzDir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = rlz.Close() }()

	deps := dispatch.Deps{Rlz: rlz, Reg: registry.Content{}, Log: log}
	if !spec.SkipSave {
		agg, err := store.Open(spec.AggDir)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		defer func() { _ = agg.Close() }()
		deps.Agg = agg
	}

	rep, err := dispatch.Run(parent, spec, deps)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}

	if spec.SkipSave {
		if err := writers.WriteCurves(opts.Output, outw, rep.Curves); err != nil {
			if writers.IsBrokenPipe(err) {
				return 0
			}
			_, _ = fmt.Fprintln(stderr, err)
			return 3
		}
		if e := outw.Flush(); e != nil && !writers.IsBrokenPipe(e) {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
	}

	if rep.FailedJobs > 0 {
		_, _ = fmt.Fprintf(stderr, "%d of %d jobs failed\n", rep.FailedJobs, rep.TotalJobs)
		return 1
	}
	return 0
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}
