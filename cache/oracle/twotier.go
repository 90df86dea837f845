// Package oracle is a reference, two-tier parallel.CacheOracle:
// github.com/dgraph-io/ristretto/v2 fronts github.com/hashicorp/go-memdb
// as a durable tier, addressed by a (function identity, argument)
// fingerprint.
package oracle

import (
	"fmt"

	ristretto "github.com/dgraph-io/ristretto/v2"
	memdb "github.com/hashicorp/go-memdb"
)

const (
	tableEntries = "entries"
	indexID      = "id"
)

// entry is the durable-tier record: a memoized result keyed by call
// fingerprint.
type entry struct {
	Fingerprint string
	Value       any
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableEntries: {
				Name: tableEntries,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Fingerprint"},
					},
				},
			},
		},
	}
}

// TwoTier is a reference durable CacheOracle: a ristretto cache fronts a
// go-memdb table, so that a restart-surviving cache (memdb held by a
// long-lived process, or swapped for a real database by an embedder)
// still gets ristretto's fast hit path.
type TwoTier struct {
	fast *ristretto.Cache[string, any]
	slow *memdb.MemDB
}

// New constructs a TwoTier cache oracle. maxCost bounds the fast tier's
// memory budget in ristretto's cost units (see ristretto.Config.MaxCost);
// 0 defaults to 1GiB.
func New(maxCost int64) (*TwoTier, error) {
	if maxCost <= 0 {
		maxCost = 1 << 30
	}
	fast, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 1e7,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: fast tier: %w", err)
	}
	slow, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("oracle: slow tier: %w", err)
	}
	return &TwoTier{fast: fast, slow: slow}, nil
}

func fingerprintOf(functionIdentity string, arg any) string {
	return fmt.Sprintf("%s:%v", functionIdentity, arg)
}

// Has reports whether an entry exists for (functionIdentity, arg),
// checking the fast tier before falling back to the durable tier.
func (t *TwoTier) Has(functionIdentity string, arg any) bool {
	_, ok := t.Get(functionIdentity, arg)
	return ok
}

// Get retrieves the cached value for (functionIdentity, arg). A durable
// tier hit is promoted into the fast tier so the next Get/Has avoids the
// memdb transaction, the same promotion a cache-aside read performs.
func (t *TwoTier) Get(functionIdentity string, arg any) (any, bool) {
	fp := fingerprintOf(functionIdentity, arg)
	if v, ok := t.fast.Get(fp); ok {
		return v, true
	}

	txn := t.slow.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableEntries, indexID, fp)
	if err != nil || raw == nil {
		return nil, false
	}
	e := raw.(*entry)
	t.fast.Set(fp, e.Value, 1)
	return e.Value, true
}

// Set records result for (functionIdentity, arg) in both tiers. A
// worker's write must be observable by the driver's next cache query once
// its job is reported complete, so Set blocks on ristretto's Wait before
// returning.
func (t *TwoTier) Set(functionIdentity string, arg any, result any) {
	fp := fingerprintOf(functionIdentity, arg)

	txn := t.slow.Txn(true)
	if err := txn.Insert(tableEntries, &entry{Fingerprint: fp, Value: result}); err != nil {
		txn.Abort()
		return
	}
	txn.Commit()

	t.fast.Set(fp, result, 1)
	t.fast.Wait()
}
