/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package contracts

import (
	"context"

	"github.com/estatehub/portal-sync/pkg/types"
)

// Fetcher is the minimal interface refreshers need from the backend client.
type Fetcher interface {
	// Fetch returns the raw response body for resource filtered by query.
	// Implementations should return promptly when ctx is cancelled.
	Fetch(ctx context.Context, resource types.Resource, query map[string]string) ([]byte, error)
}

// SnapshotStore keeps the latest payload of each view.
type SnapshotStore interface {
	Put(view types.View, payload []byte, changed bool) types.Snapshot
	Get(viewID string) (types.Snapshot, bool)
	Remove(viewID string)
}

// FetcherFunc adapts an ordinary function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, resource types.Resource, query map[string]string) ([]byte, error)

// Fetch calls f(ctx, resource, query).
func (f FetcherFunc) Fetch(ctx context.Context, resource types.Resource, query map[string]string) ([]byte, error) {
	return f(ctx, resource, query)
}
