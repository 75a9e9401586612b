/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package refresher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewRetryBackoff creates the jittered exponential backoff used between
// attempts of a single failed fetch.
// Base: 500ms, Max: 30s, with exponential multiplier.
func NewRetryBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0 // bounded by retry count instead
	return eb
}

// retryPolicy bounds b to maxRetries extra attempts and stops it when ctx
// is done.
func retryPolicy(ctx context.Context, b backoff.BackOff, maxRetries int) backoff.BackOffContext {
	if maxRetries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}
