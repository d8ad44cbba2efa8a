// internal/scratch/scratch.go

// Package scratch stores one job's realization slice as a temporary file.
// The dispatcher writes it while slicing a batch; exactly one worker reads
// and removes it. Rows are fixed-width digests followed by the value
// vector, little-endian float64.
package scratch

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"hazpost-core/hazard"

	"hazpost/internal/store"
)

var magic = [4]byte{'h', 'z', 'p', '1'}

// Write writes one job's rows to path. The file is created fresh; a
// pre-existing file means two jobs share a scratch path, which is a bug.
func Write(path string, rows []store.Realization) error {
	if len(rows) == 0 {
		return fmt.Errorf("scratch: no rows for %s", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("scratch: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	nlevels := len(rows[0].Values)

	var hdr [12]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(rows)))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(nlevels))
	_, err = w.Write(hdr[:])

	for _, r := range rows {
		if err != nil {
			break
		}
		if len(r.SourceDigest)+len(r.GMCMDigest) != hazard.HashLen || len(r.Values) != nlevels {
			err = fmt.Errorf("scratch: inconsistent row for %s", path)
			break
		}
		if _, err = io.WriteString(w, r.SourceDigest); err != nil {
			break
		}
		if _, err = io.WriteString(w, r.GMCMDigest); err != nil {
			break
		}
		var buf [8]byte
		for _, v := range r.Values {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			if _, err = w.Write(buf[:]); err != nil {
				break
			}
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}

// Read loads a job file written by Write.
func Read(path string) ([]store.Realization, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	r := bufio.NewReader(f)

	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("scratch: %s: short header: %w", path, err)
	}
	if [4]byte(hdr[:4]) != magic {
		return nil, fmt.Errorf("scratch: %s: not a job file", path)
	}
	nrows := int(binary.LittleEndian.Uint32(hdr[4:]))
	nlevels := int(binary.LittleEndian.Uint32(hdr[8:]))

	rows := make([]store.Realization, nrows)
	rowBuf := make([]byte, hazard.HashLen+8*nlevels)
	for i := range rows {
		if _, err := io.ReadFull(r, rowBuf); err != nil {
			return nil, fmt.Errorf("scratch: %s: truncated at row %d: %w", path, i, err)
		}
		half := hazard.HashLen / 2
		rows[i].SourceDigest = string(rowBuf[:half])
		rows[i].GMCMDigest = string(rowBuf[half:hazard.HashLen])
		values := make([]float64, nlevels)
		for j := range values {
			values[j] = math.Float64frombits(binary.LittleEndian.Uint64(rowBuf[hazard.HashLen+8*j:]))
		}
		rows[i].Values = values
	}
	return rows, nil
}
