/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package snapshot keeps the latest fetched payload of every live view in
// memory. Nothing is persisted; a snapshot goes away with its view or when
// the cache evicts it.
package snapshot

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/estatehub/portal-sync/pkg/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded LRU of view snapshots. It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, types.Snapshot]
}

// New returns a cache holding at most size snapshots.
func New(size int) (*Cache, error) {
	entries, err := lru.New[string, types.Snapshot](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Put stores payload as the latest snapshot of view and returns it.
func (c *Cache) Put(view types.View, payload []byte, changed bool) types.Snapshot {
	snap := types.Snapshot{
		ViewID:    view.ID,
		Resource:  view.Resource,
		Payload:   payload,
		ETag:      ETag(payload),
		FetchedAt: time.Now().UTC(),
		Changed:   changed,
	}
	c.entries.Add(view.ID, snap)
	return snap
}

// Get returns the latest snapshot of a view.
func (c *Cache) Get(viewID string) (types.Snapshot, bool) {
	return c.entries.Get(viewID)
}

// Remove drops the snapshot of a view.
func (c *Cache) Remove(viewID string) {
	c.entries.Remove(viewID)
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// ETag returns a strong entity tag for payload.
func ETag(payload []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(payload), 16) + `"`
}
