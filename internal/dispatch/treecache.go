// internal/dispatch/treecache.go
package dispatch

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"hazpost-core/hazard"

	"hazpost/internal/jobspec"
	"hazpost/internal/shmem"
)

// The tree cache lets a restarted run skip the combinatorial tree build.
// A cache file holds the composite weights and branch hash table in the
// shmem byte encodings, keyed by the content of both tree files so a
// stale cache can never match an edited tree.

var cacheMagic = [4]byte{'h', 'z', 'p', 'c'}

func cachePath(spec *jobspec.Spec) (string, error) {
	h := sha256.New()
	for _, path := range []string{spec.SRMTreePath, spec.GMCMTreePath} {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		h.Write(data)
	}
	key := hex.EncodeToString(h.Sum(nil))[:12]
	return filepath.Join(spec.TreeCacheDir, key+".tree"), nil
}

func loadCached(spec *jobspec.Spec, log *slog.Logger) (weights []float64, table [][]string, ok bool, err error) {
	path, err := cachePath(spec)
	if err != nil {
		return nil, nil, false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}

	if len(data) < 12 || [4]byte(data[:4]) != cacheMagic {
		return nil, nil, false, fmt.Errorf("dispatch: %s: not a tree cache file", path)
	}
	rows := int(binary.LittleEndian.Uint32(data[4:]))
	cols := int(binary.LittleEndian.Uint32(data[8:]))
	wEnd := 12 + 8*rows
	tEnd := wEnd + rows*cols*hazard.HashLen
	if len(data) != tEnd {
		return nil, nil, false, fmt.Errorf("dispatch: %s: size %d, want %d", path, len(data), tEnd)
	}
	weights, err = shmem.WeightsFromBytes(data[12:wEnd])
	if err != nil {
		return nil, nil, false, err
	}
	table, err = shmem.HashTableFromBytes(data[wEnd:], rows, cols)
	if err != nil {
		return nil, nil, false, err
	}
	log.Info("tree cache hit", "path", path, "composite_branches", rows)
	return weights, table, true, nil
}

func saveCached(spec *jobspec.Spec, weights []float64, table [][]string) error {
	path, err := cachePath(spec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(spec.TreeCacheDir, 0o755); err != nil {
		return err
	}

	tableBytes, rows, cols, err := shmem.HashTableBytes(table)
	if err != nil {
		return err
	}
	if rows != len(weights) {
		return fmt.Errorf("dispatch: %d weights for %d composite branches", len(weights), rows)
	}
	data := make([]byte, 0, 12+8*rows+len(tableBytes))
	data = append(data, cacheMagic[:]...)
	data = binary.LittleEndian.AppendUint32(data, uint32(rows))
	data = binary.LittleEndian.AppendUint32(data, uint32(cols))
	data = append(data, shmem.WeightsBytes(weights)...)
	data = append(data, tableBytes...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
