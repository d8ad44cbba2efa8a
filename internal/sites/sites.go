// internal/sites/sites.go

// Package sites resolves the job specification's site list into coded
// (location, vs30) pairs.
package sites

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"hazpost-core/location"

	"hazpost/internal/jobspec"
)

// Site is one aggregation target.
type Site struct {
	Location location.CodedLocation
	VS30     int
}

func (s Site) String() string {
	return fmt.Sprintf("%s vs30=%d", s.Location.FineCode(), s.VS30)
}

// Resolve expands the spec's explicit location list or site file. A single
// vs30 broadcasts over all locations.
func Resolve(spec *jobspec.Spec) ([]Site, error) {
	if spec.SiteFile != "" {
		f, err := os.Open(spec.SiteFile)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		out, err := ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.SiteFile, err)
		}
		return out, nil
	}

	out := make([]Site, 0, len(spec.Locations))
	for i, code := range spec.Locations {
		loc, err := location.Parse(code)
		if err != nil {
			return nil, err
		}
		vs30 := spec.VS30s[0]
		if len(spec.VS30s) > 1 {
			vs30 = spec.VS30s[i]
		}
		out = append(out, Site{Location: loc, VS30: vs30})
	}
	return out, nil
}

// ReadCSV reads a site file with a lat,lon,vs30 header.
func ReadCSV(r io.Reader) ([]Site, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("sites: read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"lat", "lon", "vs30"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("sites: missing column %q", name)
		}
	}

	var out []Site
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(rec[col["lat"]], 64)
		if err != nil {
			return nil, fmt.Errorf("sites: bad lat %q", rec[col["lat"]])
		}
		lon, err := strconv.ParseFloat(rec[col["lon"]], 64)
		if err != nil {
			return nil, fmt.Errorf("sites: bad lon %q", rec[col["lon"]])
		}
		vs30, err := strconv.Atoi(rec[col["vs30"]])
		if err != nil || vs30 <= 0 {
			return nil, fmt.Errorf("sites: bad vs30 %q", rec[col["vs30"]])
		}
		out = append(out, Site{Location: location.New(lat, lon), VS30: vs30})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sites: no sites in file")
	}
	return out, nil
}
