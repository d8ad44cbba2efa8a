// internal/store/badger.go
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"hazpost-core/hazard"
	"hazpost-core/location"
)

// DB is a badger-backed implementation of the store interfaces. Open one
// DB per store directory (realizations and aggregates are separate
// datasets with separate partitioning).
type DB struct {
	db *badger.DB
}

// Open opens (creating if needed) a store directory.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dir, err)
	}
	return &DB{db: db}, nil
}

// OpenInMemory opens a transient store, used by tests and dry runs.
func OpenInMemory() (*DB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Realization keys order the partition columns coarse-to-fine so one batch
// is one contiguous prefix scan per imt:
//
//	rlz|<compat>|<vs30>|<nloc0>|<imt>|<nloc3>|<srcDigest><gmcmDigest>
func rlzKey(compat string, vs30 int, nloc0, imt, nloc3, digest string) []byte {
	return []byte(strings.Join([]string{"rlz", compat, strconv.Itoa(vs30), nloc0, imt, nloc3, digest}, "|"))
}

func rlzPrefix(compat string, vs30 int, nloc0, imt string) []byte {
	return []byte(strings.Join([]string{"rlz", compat, strconv.Itoa(vs30), nloc0, imt}, "|") + "|")
}

// aggKey partitions aggregates by (vs30, imt, location) under the model id:
//
//	agg|<model>|<vs30>|<imt>|<nloc3>|<aggType>
func aggKey(model string, vs30 int, imt, nloc3, aggType string) []byte {
	return []byte(strings.Join([]string{"agg", model, strconv.Itoa(vs30), imt, nloc3, aggType}, "|"))
}

// PutRealizations writes one site/imt's component realizations.
func (d *DB) PutRealizations(ctx context.Context, compat string, vs30 int, loc location.CodedLocation, imt string, rlzs []Realization) error {
	wb := d.db.NewWriteBatch()
	defer wb.Cancel()
	nloc0 := loc.PartitionCode()
	nloc3 := loc.FineCode()
	for _, r := range rlzs {
		if err := ctx.Err(); err != nil {
			return err
		}
		digest := r.SourceDigest + r.GMCMDigest
		if len(digest) != hazard.HashLen {
			return fmt.Errorf("store: digest %q has length %d, want %d", digest, len(digest), hazard.HashLen)
		}
		k := rlzKey(compat, vs30, nloc0, imt, nloc3, digest)
		if err := wb.Set(k, encodeValues(r.Values)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Batch runs the partition-pruned realization query: one prefix scan per
// imt, scans running concurrently, rows filtered to the digest sets and
// grouped per (site, imt).
func (d *DB) Batch(ctx context.Context, q BatchQuery) (Batch, error) {
	perIMT := make([]Batch, len(q.IMTs))
	g, ctx := errgroup.WithContext(ctx)
	for i, imt := range q.IMTs {
		i, imt := i, imt
		g.Go(func() error {
			b := Batch{}
			prefix := rlzPrefix(q.CompatKey, q.VS30, q.Partition, imt)
			err := d.db.View(func(txn *badger.Txn) error {
				opts := badger.DefaultIteratorOptions
				opts.Prefix = prefix
				it := txn.NewIterator(opts)
				defer it.Close()
				for it.Rewind(); it.Valid(); it.Next() {
					if err := ctx.Err(); err != nil {
						return err
					}
					item := it.Item()
					nloc3, rlz, err := parseRlzSuffix(string(item.Key()[len(prefix):]))
					if err != nil {
						return err
					}
					if !inSet(q.SourceDigests, rlz.SourceDigest) || !inSet(q.GMCMDigests, rlz.GMCMDigest) {
						continue
					}
					if err := item.Value(func(val []byte) error {
						values, err := decodeValues(val)
						if err != nil {
							return err
						}
						rlz.Values = values
						return nil
					}); err != nil {
						return err
					}
					key := JobKey{LocCode: nloc3, IMT: imt}
					b[key] = append(b[key], rlz)
				}
				return nil
			})
			if err != nil {
				return err
			}
			perIMT[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := Batch{}
	for _, b := range perIMT {
		for k, rows := range b {
			out[k] = rows
		}
	}
	return out, nil
}

func parseRlzSuffix(suffix string) (nloc3 string, rlz Realization, err error) {
	nloc3, digest, ok := strings.Cut(suffix, "|")
	if !ok || len(digest) != hazard.HashLen {
		return "", Realization{}, fmt.Errorf("store: malformed realization key suffix %q", suffix)
	}
	rlz.SourceDigest = digest[:hazard.HashLen/2]
	rlz.GMCMDigest = digest[hazard.HashLen/2:]
	return nloc3, rlz, nil
}

func inSet(set map[string]struct{}, s string) bool {
	if set == nil {
		return true
	}
	_, ok := set[s]
	return ok
}

// SaveAggregate persists one aggregate curve.
func (d *DB) SaveAggregate(ctx context.Context, model string, loc location.CodedLocation, vs30 int, imt, aggType string, values []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := aggKey(model, vs30, imt, loc.FineCode(), aggType)
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, encodeValues(values))
	})
}

// GetAggregate reads one aggregate curve back.
func (d *DB) GetAggregate(ctx context.Context, model string, loc location.CodedLocation, vs30 int, imt, aggType string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var values []float64
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(aggKey(model, vs30, imt, loc.FineCode(), aggType))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			values, err = decodeValues(val)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: aggregate %s %s %d %s %s: %w", model, loc.FineCode(), vs30, imt, aggType, err)
	}
	return values, nil
}
