// internal/ingest/ingest.go

// Package ingest loads component-branch realization curves from CSV into
// a realization store. One input file carries one compatibility key's
// dataset; rows are grouped per (vs30, site, imt) and written in batches.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"hazpost-core/location"
	"hazpost-core/registry"

	"hazpost/internal/store"
)

var columns = []string{"vs30", "lat", "lon", "imt", "source_digest", "gmcm_digest", "values"}

type groupKey struct {
	vs30 int
	loc  location.CodedLocation
	imt  string
}

// CSV reads realization rows and writes them to w under compat. The
// values column is a semicolon-separated probability vector; digests are
// the fixed-length hex identities from the branch registry. Returns the
// number of rows written.
func CSV(ctx context.Context, r io.Reader, compat string, w store.RealizationWriter, log *slog.Logger) (int, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("ingest: read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, name := range columns {
		if _, ok := col[name]; !ok {
			return 0, fmt.Errorf("ingest: missing column %q", name)
		}
	}

	groups := map[groupKey][]store.Realization{}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		line++
		key, rlz, err := parseRow(rec, col)
		if err != nil {
			return 0, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		groups[key] = append(groups[key], rlz)
	}

	total := 0
	for key, rlzs := range groups {
		if err := w.PutRealizations(ctx, compat, key.vs30, key.loc, key.imt, rlzs); err != nil {
			return total, err
		}
		total += len(rlzs)
		log.Debug("ingested group",
			"site", key.loc.FineCode(), "vs30", key.vs30, "imt", key.imt, "rows", len(rlzs))
	}
	return total, nil
}

func parseRow(rec []string, col map[string]int) (groupKey, store.Realization, error) {
	vs30, err := strconv.Atoi(rec[col["vs30"]])
	if err != nil || vs30 <= 0 {
		return groupKey{}, store.Realization{}, fmt.Errorf("bad vs30 %q", rec[col["vs30"]])
	}
	lat, err := strconv.ParseFloat(rec[col["lat"]], 64)
	if err != nil {
		return groupKey{}, store.Realization{}, fmt.Errorf("bad lat %q", rec[col["lat"]])
	}
	lon, err := strconv.ParseFloat(rec[col["lon"]], 64)
	if err != nil {
		return groupKey{}, store.Realization{}, fmt.Errorf("bad lon %q", rec[col["lon"]])
	}
	src := rec[col["source_digest"]]
	gmcm := rec[col["gmcm_digest"]]
	if len(src) != registry.DigestLen || len(gmcm) != registry.DigestLen {
		return groupKey{}, store.Realization{}, fmt.Errorf("bad digest pair %q %q", src, gmcm)
	}

	fields := strings.Split(rec[col["values"]], ";")
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return groupKey{}, store.Realization{}, fmt.Errorf("bad value %q", f)
		}
		if v < 0 || v >= 1 {
			return groupKey{}, store.Realization{}, fmt.Errorf("probability %v outside [0,1)", v)
		}
		values[i] = v
	}

	key := groupKey{
		vs30: vs30,
		loc:  location.New(lat, lon),
		imt:  rec[col["imt"]],
	}
	return key, store.Realization{SourceDigest: src, GMCMDigest: gmcm, Values: values}, nil
}
