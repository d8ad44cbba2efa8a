// internal/dispatch/dispatch.go

// Package dispatch runs one aggregation job spec end to end: resolve
// sites, build or reload the logic tree, publish the shared branch data,
// slice store batches into per-job scratch files, fan the jobs out over a
// worker pool and tear everything down. A failed job never aborts the
// run; it is counted and reported.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	"hazpost-core/curve"
	"hazpost-core/hazard"
	"hazpost-core/location"
	"hazpost-core/logictree"
	"hazpost-core/registry"

	"hazpost/internal/jobspec"
	"hazpost/internal/scratch"
	"hazpost/internal/shmem"
	"hazpost/internal/sites"
	"hazpost/internal/store"
	"hazpost/pkg/api"
)

// invTime is the investigation time in years. Stored probabilities are
// annual, so the rate conversion uses 1.0.
const invTime = 1.0

// Deps are the run's injected collaborators. Agg may be nil when the
// spec sets skip_save.
type Deps struct {
	Rlz store.RealizationStore
	Agg store.AggregateStore
	Reg registry.Registry
	Log *slog.Logger

	// ShmemDir overrides the shared region directory; empty means
	// shmem.DefaultDir().
	ShmemDir string
}

// Report summarizes one run.
type Report struct {
	TotalJobs  int
	FailedJobs int

	TreeBuild time.Duration
	Parallel  time.Duration
	Total     time.Duration

	// Curves holds the aggregate rows of a skip_save run, in completion
	// order.
	Curves []api.CurveV1
}

type job struct {
	path string
	loc  location.CodedLocation
	vs30 int
	imt  string
}

type result struct {
	job    job
	curves []api.CurveV1
	err    error
}

// branchData is the decoded shared tree data a worker computes with.
type branchData struct {
	weights   []float64
	hashTable [][]string
}

// Run executes the spec. The returned Report is valid even when err is
// nil but FailedJobs > 0; callers decide how to exit on partial failure.
func Run(ctx context.Context, spec *jobspec.Spec, deps Deps) (Report, error) {
	start := time.Now()
	var rep Report

	siteList, err := sites.Resolve(spec)
	if err != nil {
		return rep, err
	}
	rep.TotalJobs = len(siteList) * len(spec.IMTs)

	treeStart := time.Now()
	weights, hashTable, err := treeData(spec, deps)
	if err != nil {
		return rep, err
	}
	rep.TreeBuild = time.Since(treeStart)

	srcSet, gmcmSet, nExpected := digestSets(hashTable)
	deps.Log.Info("logic tree ready",
		"composite_branches", len(weights),
		"component_branches", nExpected,
		"build_time", rep.TreeBuild)

	shmDir := deps.ShmemDir
	if shmDir == "" {
		shmDir = shmem.DefaultDir()
	}
	runID := uuid.NewString()[:8]

	weightsRegion, err := shmem.Publish(shmDir, runID+"-weights", shmem.WeightsBytes(weights))
	if err != nil {
		return rep, err
	}
	defer func() { _ = weightsRegion.Close() }()

	tableBytes, rows, cols, err := shmem.HashTableBytes(hashTable)
	if err != nil {
		return rep, err
	}
	hashRegion, err := shmem.Publish(shmDir, runID+"-hashes", tableBytes)
	if err != nil {
		return rep, err
	}
	defer func() { _ = hashRegion.Close() }()

	workDir := spec.WorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "hazpost-work-")
		if err != nil {
			return rep, err
		}
		defer func() { _ = os.RemoveAll(workDir) }()
	}

	jobs, failed, err := sliceBatches(ctx, spec, deps, siteList, srcSet, gmcmSet, nExpected, workDir, runID)
	if err != nil {
		return rep, err
	}
	rep.FailedJobs = failed

	parStart := time.Now()
	curves, failedExec, runErr := runPool(ctx, spec, deps, jobs, shmDir, runID, rows, cols)
	rep.Parallel = time.Since(parStart)
	rep.FailedJobs += failedExec
	rep.Curves = curves
	rep.Total = time.Since(start)
	if runErr != nil {
		// the report still adds up: undispatched jobs are counted failed
		return rep, runErr
	}

	deps.Log.Info("run complete",
		"total_jobs", rep.TotalJobs,
		"failed_jobs", rep.FailedJobs,
		"parallel_time", rep.Parallel,
		"total_time", rep.Total)
	return rep, nil
}

// treeData builds the composite weights and branch hash table, going
// through the tree cache when the spec enables one.
func treeData(spec *jobspec.Spec, deps Deps) ([]float64, [][]string, error) {
	if spec.TreeCacheDir != "" {
		w, t, ok, err := loadCached(spec, deps.Log)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			return w, t, nil
		}
	}

	srm, err := logictree.LoadSource(spec.SRMTreePath)
	if err != nil {
		return nil, nil, err
	}
	gmcm, err := logictree.LoadGMCM(spec.GMCMTreePath)
	if err != nil {
		return nil, nil, err
	}
	tree, err := hazard.Build(srm, gmcm, deps.Reg)
	if err != nil {
		return nil, nil, err
	}
	weights, err := tree.Weights()
	if err != nil {
		return nil, nil, err
	}
	table, err := tree.BranchHashTable()
	if err != nil {
		return nil, nil, err
	}

	if spec.TreeCacheDir != "" {
		if err := saveCached(spec, weights, table); err != nil {
			deps.Log.Warn("tree cache write failed", "err", err)
		}
	}
	return weights, table, nil
}

// digestSets derives the component digest universe from the hash table:
// the source and gmcm filter sets for store queries, and the expected
// per-job record count.
func digestSets(table [][]string) (src, gmcm map[string]struct{}, nExpected int) {
	src = map[string]struct{}{}
	gmcm = map[string]struct{}{}
	full := map[string]struct{}{}
	for _, row := range table {
		for _, h := range row {
			full[h] = struct{}{}
			src[h[:len(h)/2]] = struct{}{}
			gmcm[h[len(h)/2:]] = struct{}{}
		}
	}
	return src, gmcm, len(full)
}

// sliceBatches fetches one store batch per (vs30, partition) and writes
// each job's rows to a scratch file. Jobs whose rows are missing or
// miscounted fail here, before any worker starts.
func sliceBatches(
	ctx context.Context,
	spec *jobspec.Spec,
	deps Deps,
	siteList []sites.Site,
	srcSet, gmcmSet map[string]struct{},
	nExpected int,
	workDir, runID string,
) ([]job, int, error) {
	byVS30 := map[int][]location.CodedLocation{}
	for _, s := range siteList {
		byVS30[s.VS30] = append(byVS30[s.VS30], s.Location)
	}
	vs30s := make([]int, 0, len(byVS30))
	for v := range byVS30 {
		vs30s = append(vs30s, v)
	}
	sort.Ints(vs30s)

	var jobs []job
	failed := 0
	for _, vs30 := range vs30s {
		bins := location.Bin(byVS30[vs30], location.PartitionResolution)
		parts := make([]string, 0, len(bins))
		for p := range bins {
			parts = append(parts, p)
		}
		sort.Strings(parts)

		for _, part := range parts {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			locs := bins[part]
			batch, err := deps.Rlz.Batch(ctx, store.BatchQuery{
				CompatKey:     spec.CompatibilityKey,
				VS30:          vs30,
				Partition:     part,
				IMTs:          spec.IMTs,
				SourceDigests: srcSet,
				GMCMDigests:   gmcmSet,
			})
			if err != nil {
				failed += len(locs) * len(spec.IMTs)
				deps.Log.Error("batch query failed",
					"vs30", vs30, "partition", part, "err", err)
				continue
			}
			for _, loc := range locs {
				for _, imt := range spec.IMTs {
					rows, err := batch.Job(loc, imt, nExpected)
					if err != nil {
						failed++
						deps.Log.Error("job data missing",
							"site", loc.FineCode(), "vs30", vs30, "imt", imt, "err", err)
						continue
					}
					path := filepath.Join(workDir,
						fmt.Sprintf("%s_%d_%s_%s.dat", runID, vs30, loc.FineCode(), imt))
					if err := scratch.Write(path, rows); err != nil {
						failed++
						deps.Log.Error("scratch write failed",
							"site", loc.FineCode(), "vs30", vs30, "imt", imt, "err", err)
						continue
					}
					jobs = append(jobs, job{path: path, loc: loc, vs30: vs30, imt: imt})
				}
			}
		}
	}
	return jobs, failed, nil
}

// runPool fans the jobs out over a fixed pool of workers. Each worker
// attaches the shared regions once and decodes its own view of the tree
// data.
func runPool(
	ctx context.Context,
	spec *jobspec.Spec,
	deps Deps,
	jobs []job,
	shmDir, runID string,
	rows, cols int,
) ([]api.CurveV1, int, error) {
	workers := spec.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}

	jobCh := make(chan job, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	resCh := make(chan result, workers)

	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			data, err := attachBranchData(shmDir, runID, rows, cols)
			if err != nil {
				// Surfaced once per worker; jobs it would have taken are
				// drained by the others or fail the run below.
				resCh <- result{err: fmt.Errorf("worker attach: %w", err)}
				return
			}
			for j := range jobCh {
				if ctx.Err() != nil {
					return
				}
				curves, err := process(ctx, spec, deps, data, j)
				resCh <- result{job: j, curves: curves, err: err}
			}
		}()
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(resCh)
	}()

	var out []api.CurveV1
	var workerErr error
	failed := 0
	finished := 0
	for r := range resCh {
		if r.err != nil {
			if r.job.path == "" {
				// an attach failure shrinks the pool but the remaining
				// workers drain the queue
				deps.Log.Error("worker failed to attach shared regions", "err", r.err)
				workerErr = r.err
				continue
			}
			failed++
			finished++
			deps.Log.Error("job failed",
				"site", r.job.loc.FineCode(), "vs30", r.job.vs30, "imt", r.job.imt, "err", r.err)
			continue
		}
		finished++
		deps.Log.Debug("job done",
			"site", r.job.loc.FineCode(), "vs30", r.job.vs30, "imt", r.job.imt)
		out = append(out, r.curves...)
	}
	if undispatched := len(jobs) - finished; undispatched > 0 {
		// jobs left in the queue by cancellation or a fully failed pool
		failed += undispatched
		deps.Log.Error("jobs not executed", "count", undispatched, "err", ctx.Err())
	}
	if workerErr != nil && len(out) == 0 && finished == 0 {
		return nil, failed, workerErr
	}
	return out, failed, ctx.Err()
}

func attachBranchData(shmDir, runID string, rows, cols int) (branchData, error) {
	wr, err := shmem.Attach(shmDir, runID+"-weights")
	if err != nil {
		return branchData{}, err
	}
	defer func() { _ = wr.Close() }()
	hr, err := shmem.Attach(shmDir, runID+"-hashes")
	if err != nil {
		return branchData{}, err
	}
	defer func() { _ = hr.Close() }()

	weights, err := shmem.WeightsFromBytes(wr.Bytes())
	if err != nil {
		return branchData{}, err
	}
	table, err := shmem.HashTableFromBytes(hr.Bytes(), rows, cols)
	if err != nil {
		return branchData{}, err
	}
	return branchData{weights: weights, hashTable: table}, nil
}

// process aggregates one (site, vs30, imt) job: read and delete the
// scratch file, convert to rates, assemble composite branch rates, reduce
// and either save or return the curves.
func process(ctx context.Context, spec *jobspec.Spec, deps Deps, data branchData, j job) ([]api.CurveV1, error) {
	rlzs, err := scratch.Read(j.path)
	_ = os.Remove(j.path)
	if err != nil {
		return nil, err
	}

	componentRates := make(map[string][]float64, len(rlzs))
	for _, r := range rlzs {
		componentRates[r.SourceDigest+r.GMCMDigest] = curve.ProbToRate(r.Values, invTime)
	}
	branchRates, err := curve.BuildBranchRates(data.hashTable, componentRates)
	if err != nil {
		return nil, err
	}
	aggRates, err := curve.CalculateAggs(branchRates, data.weights, spec.AggTypes)
	if err != nil {
		return nil, err
	}

	var out []api.CurveV1
	for i, aggType := range spec.AggTypes {
		values := curve.RateToProb(aggRates[i], invTime)
		if spec.SkipSave {
			out = append(out, api.CurveV1{
				HazardModelID: spec.HazardModelID,
				Location:      j.loc.FineCode(),
				VS30:          j.vs30,
				IMT:           j.imt,
				AggType:       aggType,
				Values:        values,
			})
			continue
		}
		if err := deps.Agg.SaveAggregate(ctx, spec.HazardModelID, j.loc, j.vs30, j.imt, aggType, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}
