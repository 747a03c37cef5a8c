package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"immunocore/pkg/domain"
)

const defaultDistinctCacheSize = 64

type distinctKey struct {
	attr    domain.Attribute
	version uint64
}

// DistinctCache memoizes distinct attribute values per store version. A
// rebuild bumps the version, so entries computed before it are never served.
type DistinctCache struct {
	entries *lru.Cache[distinctKey, []string]
}

// NewDistinctCache returns a cache bounded to size entries (default when size <= 0).
func NewDistinctCache(size int) *DistinctCache {
	if size <= 0 {
		size = defaultDistinctCacheSize
	}
	entries, err := lru.New[distinctKey, []string](size)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &DistinctCache{entries: entries}
}

// Values returns the sorted distinct non-null values of attr in store.
func (c *DistinctCache) Values(ctx context.Context, store domain.RecordStore, attr domain.Attribute) ([]string, error) {
	if !attr.Known() {
		return nil, &domain.FilterError{Attribute: attr, Reason: "unknown attribute"}
	}
	version, err := store.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("store version: %w", err)
	}
	key := distinctKey{attr: attr, version: version}
	if cached, ok := c.entries.Get(key); ok {
		return append([]string(nil), cached...), nil
	}
	values, err := store.DistinctValues(ctx, attr)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", attr, err)
	}
	values = sortDistinct(attr, values)
	c.entries.Add(key, values)
	return append([]string(nil), values...), nil
}

// Purge drops every memoized entry.
func (c *DistinctCache) Purge() { c.entries.Purge() }

// Len reports the number of memoized entries.
func (c *DistinctCache) Len() int { return c.entries.Len() }

func sortDistinct(attr domain.Attribute, values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if attr.Integer() {
		sort.SliceStable(out, func(i, j int) bool {
			a, errA := strconv.Atoi(out[i])
			b, errB := strconv.Atoi(out[j])
			if errA != nil || errB != nil {
				return out[i] < out[j]
			}
			return a < b
		})
		return out
	}
	sort.Strings(out)
	return out
}
