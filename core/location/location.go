// core/location/location.go

// Package location provides coded site locations. A coded location is a
// lat~lon string at a fixed grid resolution; coarse codes partition sites
// for batched store queries.
package location

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Resolutions for the fine (site) and coarse (partition) grids.
const (
	FineResolution      = 0.001
	PartitionResolution = 1.0
)

// CodedLocation is a site location snapped to a grid.
type CodedLocation struct {
	Lat float64
	Lon float64
}

// New snaps lat/lon to the fine grid.
func New(lat, lon float64) CodedLocation {
	return CodedLocation{Lat: lat, Lon: lon}.Downsample(FineResolution)
}

// Downsample snaps the location to a coarser grid resolution.
func (l CodedLocation) Downsample(res float64) CodedLocation {
	return CodedLocation{
		Lat: math.Round(l.Lat/res) * res,
		Lon: math.Round(l.Lon/res) * res,
	}
}

// Code renders the location as "lat~lon" at the given resolution.
func (l CodedLocation) Code(res float64) string {
	places := decimalPlaces(res)
	d := l.Downsample(res)
	return fmt.Sprintf("%.*f~%.*f", places, d.Lat, places, d.Lon)
}

// FineCode is the site-resolution code (0.001 degree grid).
func (l CodedLocation) FineCode() string { return l.Code(FineResolution) }

// PartitionCode is the coarse partition key (1 degree grid).
func (l CodedLocation) PartitionCode() string { return l.Code(PartitionResolution) }

func (l CodedLocation) String() string { return l.FineCode() }

// Parse reads a "lat~lon" code.
func Parse(code string) (CodedLocation, error) {
	latStr, lonStr, ok := strings.Cut(code, "~")
	if !ok {
		return CodedLocation{}, fmt.Errorf("location: invalid code %q (want lat~lon)", code)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return CodedLocation{}, fmt.Errorf("location: invalid latitude in %q", code)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return CodedLocation{}, fmt.Errorf("location: invalid longitude in %q", code)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return CodedLocation{}, fmt.Errorf("location: coordinates out of range in %q", code)
	}
	return New(lat, lon), nil
}

// Bin groups locations by their coarse partition code, preserving order
// within each bin. Map iteration order is not significant; callers needing
// determinism sort the keys.
func Bin(locs []CodedLocation, res float64) map[string][]CodedLocation {
	bins := map[string][]CodedLocation{}
	for _, l := range locs {
		code := l.Code(res)
		bins[code] = append(bins[code], l)
	}
	return bins
}

func decimalPlaces(res float64) int {
	places := int(math.Ceil(-math.Log10(res)))
	if places < 1 {
		places = 1
	}
	return places
}
