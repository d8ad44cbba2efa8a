// internal/writers/curves.go

// Package writers renders aggregate curves for the dry-run output path.
// Formats register themselves in the registry map; callers dispatch by
// name.
package writers

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hazpost/pkg/api"
)

// CurveWriters maps format name → writer.
var CurveWriters = map[string]func(io.Writer, []api.CurveV1) error{}

// RegisterCurve registers a format handler (idempotent last-wins).
func RegisterCurve(format string, fn func(io.Writer, []api.CurveV1) error) {
	CurveWriters[format] = fn
}

// WriteCurves dispatches rows to the named format.
func WriteCurves(format string, w io.Writer, rows []api.CurveV1) error {
	fn, ok := CurveWriters[format]
	if !ok {
		return fmt.Errorf("unknown curve format %q (no writer registered)", format)
	}
	return fn(w, rows)
}

func init() {
	RegisterCurve("text", writeText)
	RegisterCurve("jsonl", writeJSONL)
}

func writeText(w io.Writer, rows []api.CurveV1) error {
	if _, err := fmt.Fprintln(w, "model\tnloc_001\tvs30\timt\tagg\tvalues"); err != nil {
		return err
	}
	for _, r := range rows {
		vals := make([]string, len(r.Values))
		for i, v := range r.Values {
			vals[i] = strconv.FormatFloat(v, 'g', 8, 64)
		}
		_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.HazardModelID, r.Location, r.VS30, r.IMT, r.AggType, strings.Join(vals, ","))
		if err != nil {
			return err
		}
	}
	return nil
}

func writeJSONL(w io.Writer, rows []api.CurveV1) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
