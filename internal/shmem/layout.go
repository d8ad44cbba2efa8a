// internal/shmem/layout.go
package shmem

import (
	"encoding/binary"
	"fmt"
	"math"

	"hazpost-core/hazard"
)

// The published byte layouts. Weights are little-endian float64; the hash
// table is rows*cols fixed-width ASCII digests. Any change here must also
// change the tree-cache file format, which reuses these encodings.

// WeightsBytes encodes the composite branch weights.
func WeightsBytes(weights []float64) []byte {
	out := make([]byte, 8*len(weights))
	for i, w := range weights {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(w))
	}
	return out
}

// WeightsFromBytes decodes a weights region.
func WeightsFromBytes(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("shmem: weights region size %d not a multiple of 8", len(data))
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return out, nil
}

// HashTableBytes encodes the branch hash table. Every row must have the
// same number of digests and every digest the fixed component length.
func HashTableBytes(table [][]string) (data []byte, rows, cols int, err error) {
	rows = len(table)
	if rows == 0 {
		return nil, 0, 0, fmt.Errorf("shmem: empty hash table")
	}
	cols = len(table[0])
	data = make([]byte, 0, rows*cols*hazard.HashLen)
	for i, row := range table {
		if len(row) != cols {
			return nil, 0, 0, fmt.Errorf("shmem: ragged hash table: row %d has %d digests, want %d", i, len(row), cols)
		}
		for _, h := range row {
			if len(h) != hazard.HashLen {
				return nil, 0, 0, fmt.Errorf("shmem: digest %q has length %d, want %d", h, len(h), hazard.HashLen)
			}
			data = append(data, h...)
		}
	}
	return data, rows, cols, nil
}

// HashTableFromBytes decodes a hash table region of known shape.
func HashTableFromBytes(data []byte, rows, cols int) ([][]string, error) {
	if len(data) != rows*cols*hazard.HashLen {
		return nil, fmt.Errorf("shmem: hash table region size %d, want %d", len(data), rows*cols*hazard.HashLen)
	}
	table := make([][]string, rows)
	off := 0
	for i := range table {
		row := make([]string, cols)
		for j := range row {
			row[j] = string(data[off : off+hazard.HashLen])
			off += hazard.HashLen
		}
		table[i] = row
	}
	return table, nil
}
