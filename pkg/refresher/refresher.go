/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package refresher runs the poll loop of a single dashboard view. Each
// cycle asks the view's pollctl.Controller how long to wait, fetches the
// listing from the backend, feeds the decoded payload back into the
// controller and publishes the raw body as the view's snapshot.
package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/estatehub/portal-sync/pkg/contracts"
	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/metrics"
	"github.com/estatehub/portal-sync/pkg/parser"
	"github.com/estatehub/portal-sync/pkg/pollctl"
	"github.com/estatehub/portal-sync/pkg/portalclient"
	"github.com/estatehub/portal-sync/pkg/snapshot"
	"github.com/estatehub/portal-sync/pkg/types"
	"github.com/estatehub/portal-sync/pkg/visibility"
)

var logger = logging.New("refresher")

// Options tunes fetching. The zero value is usable.
type Options struct {
	// MaxRetries is the number of extra attempts for a retryable failure.
	MaxRetries int
	// NewBackOff builds the wait between attempts. Defaults to NewRetryBackoff.
	NewBackOff func() backoff.BackOff
	// Decode turns a response body into the payload given to the controller.
	// Defaults to parser.Decode.
	Decode func(types.Resource, []byte) (any, error)
	// Retryable classifies fetch errors. Defaults to portalclient.IsRetryable.
	Retryable func(error) bool
}

func (o *Options) applyDefaults() {
	if o.NewBackOff == nil {
		o.NewBackOff = NewRetryBackoff
	}
	if o.Decode == nil {
		o.Decode = parser.Decode
	}
	if o.Retryable == nil {
		o.Retryable = portalclient.IsRetryable
	}
}

// Refresher polls one view. Run must be called exactly once; the other
// methods are safe to call from any goroutine.
type Refresher struct {
	view    types.View
	fetcher contracts.Fetcher
	store   contracts.SnapshotStore
	ctl     *pollctl.Controller
	opts    Options

	refreshCh chan struct{}
	wakeCh    chan struct{}

	// owned by the Run goroutine
	lastFetch time.Time
	lastETag  string
	fetches   int64
	lastErr   string

	mu     sync.Mutex
	status types.ViewStatus
}

// New creates a refresher for view. signal may be nil, in which case the
// view is always treated as visible.
func New(view types.View, fetcher contracts.Fetcher, policy pollctl.Policy, signal visibility.Signal, store contracts.SnapshotStore, opts Options) (*Refresher, error) {
	if fetcher == nil || store == nil {
		return nil, fmt.Errorf("refresher %s: fetcher and store are required", view.ID)
	}
	opts.applyDefaults()

	r := &Refresher{
		view:      view,
		fetcher:   fetcher,
		store:     store,
		opts:      opts,
		refreshCh: make(chan struct{}, 1),
		wakeCh:    make(chan struct{}, 1),
	}

	// Wake the loop after the controller has recorded the new visibility.
	next := policy.OnVisibilityChange
	policy.OnVisibilityChange = func(visible bool) {
		if next != nil {
			next(visible)
		}
		r.wake()
	}
	ctl, err := pollctl.New(policy, signal)
	if err != nil {
		return nil, fmt.Errorf("refresher %s: %w", view.ID, err)
	}
	r.ctl = ctl
	r.publish()
	return r, nil
}

// View returns the view this refresher polls.
func (r *Refresher) View() types.View {
	return r.view
}

// Refresh asks for an immediate fetch with the backoff dropped. It never
// blocks; requests made while one is pending are coalesced.
func (r *Refresher) Refresh() {
	select {
	case r.refreshCh <- struct{}{}:
	default:
	}
}

// Status returns the state published after the latest cycle.
func (r *Refresher) Status() types.ViewStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.status
	if st.LastFetchAt != nil {
		at := *st.LastFetchAt
		st.LastFetchAt = &at
	}
	return st
}

// Run polls until ctx is cancelled. The controller is disposed and the
// view's snapshot dropped on every exit path. A panic inside the loop is
// returned as an error.
func (r *Refresher) Run(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("refresher %s panic: %v", r.view.ID, rec)
		}
		r.ctl.Dispose()
		r.store.Remove(r.view.ID)
		r.publish()
		logger.Infof("view %s (%s) stopped", r.view.ID, r.view.Resource)
	}()

	logger.Infof("view %s (%s) started", r.view.ID, r.view.Resource)
	resource := string(r.view.Resource)
	r.fetch(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		interval, ok := r.ctl.RecommendedInterval()
		r.publish()

		if !ok {
			metrics.RecordPaused(resource)
			logger.Debugf("view %s paused while hidden", r.view.ID)
			select {
			case <-ctx.Done():
				return nil
			case <-r.wakeCh:
			case <-r.refreshCh:
				r.ctl.ResetInterval()
				r.fetch(ctx)
			}
			continue
		}

		metrics.RecordInterval(resource, interval.Seconds())
		wait := interval - time.Since(r.lastFetch)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-r.wakeCh:
			// Visibility changed; recompute the wait.
			timer.Stop()
		case <-r.refreshCh:
			timer.Stop()
			r.ctl.ResetInterval()
			r.fetch(ctx)
		case <-timer.C:
			r.fetch(ctx)
		}
	}
}

func (r *Refresher) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// fetch performs one cycle. Failures are recorded in the status and never
// reach the controller.
func (r *Refresher) fetch(ctx context.Context) {
	resource := string(r.view.Resource)
	start := time.Now()

	var (
		raw     []byte
		decoded any
	)
	op := func() error {
		body, err := r.fetcher.Fetch(ctx, r.view.Resource, r.view.Query)
		if err != nil {
			if !r.opts.Retryable(err) {
				return backoff.Permanent(err)
			}
			logger.Debugf("view %s fetch attempt failed: %v", r.view.ID, err)
			return err
		}
		payload, err := r.opts.Decode(r.view.Resource, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		raw, decoded = body, payload
		return nil
	}

	err := backoff.Retry(op, retryPolicy(ctx, r.opts.NewBackOff(), r.opts.MaxRetries))
	r.lastFetch = time.Now()
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.RecordFetch(resource, "error", elapsed)
		logger.Warnf("view %s fetch failed: %v", r.view.ID, err)
		r.lastErr = err.Error()
		return
	}

	r.ctl.OnDataObserved(decoded)
	etag := r.lastETag
	snap := r.store.Put(r.view, raw, r.changed(etag, raw))
	r.lastETag = snap.ETag
	r.fetches++
	r.lastErr = ""
	metrics.RecordFetch(resource, "ok", elapsed)
}

// changed reports whether the observation just made counts as a change.
// Without backoff the controller keeps no streak, so the body hash decides.
func (r *Refresher) changed(previousETag string, raw []byte) bool {
	if r.ctl.Policy().UseBackoff {
		return r.ctl.State().UnchangedStreak == 0
	}
	return previousETag != snapshot.ETag(raw)
}

func (r *Refresher) publish() {
	st := r.ctl.State()
	_, active := r.ctl.RecommendedInterval()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.View = r.view
	r.status.IntervalMs = st.CurrentInterval.Milliseconds()
	r.status.Paused = !active
	r.status.UnchangedStreak = st.UnchangedStreak
	r.status.Visible = st.Visible
	r.status.Fetches = r.fetches
	r.status.LastError = r.lastErr
	r.status.ETag = r.lastETag
	if !r.lastFetch.IsZero() {
		at := r.lastFetch.UTC()
		r.status.LastFetchAt = &at
	}
}
