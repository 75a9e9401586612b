/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/estatehub/portal-sync/pkg/contracts"
	"github.com/estatehub/portal-sync/pkg/pollctl"
	"github.com/estatehub/portal-sync/pkg/snapshot"
	"github.com/estatehub/portal-sync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testConfig() Config {
	return Config{
		Policy: pollctl.Policy{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     40 * time.Millisecond,
			Multiplier:      2,
			PauseOnHidden:   true,
			UseBackoff:      true,
		},
		IdleTimeout:   time.Minute,
		SessionTTL:    10 * time.Minute,
		SweepInterval: time.Hour,
		MaxViews:      2,
	}
}

func staticFetcher(calls *atomic.Int64) contracts.Fetcher {
	return contracts.FetcherFunc(func(ctx context.Context, resource types.Resource, query map[string]string) ([]byte, error) {
		if calls != nil {
			calls.Add(1)
		}
		if resource == types.ResourceProfile {
			return []byte(`{"id":"u-1","role":"tenant"}`), nil
		}
		return []byte(`[]`), nil
	})
}

type testPool struct {
	*Pool
	store  *snapshot.Cache
	g      *errgroup.Group
	errCh  chan error
	cancel context.CancelFunc
}

func startPool(t *testing.T, cfg Config, fetcher contracts.Fetcher) *testPool {
	t.Helper()
	store, err := snapshot.New(16)
	require.NoError(t, err)

	p := New(cfg, fetcher, store)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 4)
	g := p.Start(ctx, errCh)

	tp := &testPool{Pool: p, store: store, g: g, errCh: errCh, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		_ = g.Wait()
	})
	return tp
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New(Config{}, staticFetcher(nil), nil)
	assert.Equal(t, 2*time.Minute, p.cfg.IdleTimeout)
	assert.Equal(t, 30*time.Minute, p.cfg.SessionTTL)
	assert.Equal(t, 15*time.Second, p.cfg.SweepInterval)
	assert.Equal(t, 32, p.cfg.MaxViews)
}

func TestNotStarted(t *testing.T) {
	p := New(testConfig(), staticFetcher(nil), nil)
	assert.False(t, p.Running())

	_, err := p.CreateSession(true)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestSessionLifecycle(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))

	id, err := p.CreateSession(true)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, p.Sessions())

	visible, err := p.Visible(id)
	require.NoError(t, err)
	assert.True(t, visible)

	require.NoError(t, p.SetVisibility(id, false))
	visible, _ = p.Visible(id)
	assert.False(t, visible)

	require.NoError(t, p.CloseSession(id))
	assert.Equal(t, 0, p.Sessions())

	assert.ErrorIs(t, p.CloseSession(id), ErrSessionNotFound)
	assert.ErrorIs(t, p.SetVisibility(id, true), ErrSessionNotFound)
	_, err = p.Visible(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = p.ListViews(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAddViewPollsAndPublishes(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.InitialInterval = 50 * time.Millisecond
	cfg.Policy.MaxInterval = 200 * time.Millisecond
	p := startPool(t, cfg, staticFetcher(nil))

	sid, err := p.CreateSession(true)
	require.NoError(t, err)

	query := map[string]string{"status": "open"}
	view, err := p.AddView(sid, "maintenance_requests", query)
	require.NoError(t, err)
	assert.Equal(t, sid, view.SessionID)
	assert.Equal(t, types.ResourceMaintenanceRequests, view.Resource)
	assert.Equal(t, query, view.Query)

	// The view keeps its own copy of the query.
	query["status"] = "closed"
	st, err := p.ViewStatus(view.ID)
	require.NoError(t, err)
	assert.Equal(t, "open", st.Query["status"])

	require.Eventually(t, func() bool {
		snap, ok, err := p.Snapshot(view.ID)
		return err == nil && ok && string(snap.Payload) == "[]"
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		st, _ := p.ViewStatus(view.ID)
		return st.IntervalMs == 200
	}, 2*time.Second, 5*time.Millisecond)

	views, err := p.ListViews(sid)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, view.ID, views[0].ID)

	require.NoError(t, p.RefreshView(view.ID))
	require.Eventually(t, func() bool {
		st, _ := p.ViewStatus(view.ID)
		return st.IntervalMs == 50
	}, time.Second, time.Millisecond)
}

func TestAddViewErrors(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))
	sid, err := p.CreateSession(true)
	require.NoError(t, err)

	_, err = p.AddView(sid, "tenants", nil)
	assert.ErrorIs(t, err, types.ErrUnknownResource)

	_, err = p.AddView("missing", "invoices", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = p.AddView(sid, "invoices", nil)
	require.NoError(t, err)
	_, err = p.AddView(sid, "profile", nil)
	require.NoError(t, err)
	_, err = p.AddView(sid, "payments", nil)
	assert.ErrorIs(t, err, ErrTooManyViews)
}

func TestViewNotFound(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))

	assert.ErrorIs(t, p.RemoveView("nope"), ErrViewNotFound)
	assert.ErrorIs(t, p.RefreshView("nope"), ErrViewNotFound)
	_, err := p.ViewStatus("nope")
	assert.ErrorIs(t, err, ErrViewNotFound)
	_, _, err = p.Snapshot("nope")
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestRemoveViewDisposes(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))
	sid, _ := p.CreateSession(true)
	view, err := p.AddView(sid, "units", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := p.store.Get(view.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.RemoveView(view.ID))

	_, ok := p.store.Get(view.ID)
	assert.False(t, ok, "snapshot is dropped once RemoveView returns")
	views, err := p.ListViews(sid)
	require.NoError(t, err)
	assert.Empty(t, views)

	p.mu.Lock()
	listeners := p.sessions[sid].tracker.Listeners()
	p.mu.Unlock()
	assert.Equal(t, 0, listeners)
}

func TestHiddenSessionPausesViews(t *testing.T) {
	var calls atomic.Int64
	p := startPool(t, testConfig(), staticFetcher(&calls))
	sid, _ := p.CreateSession(true)
	view, err := p.AddView(sid, "notifications", nil)
	require.NoError(t, err)

	require.NoError(t, p.SetVisibility(sid, false))
	require.Eventually(t, func() bool {
		st, _ := p.ViewStatus(view.ID)
		return st.Paused
	}, time.Second, 5*time.Millisecond)

	paused := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, paused, calls.Load())

	require.NoError(t, p.SetVisibility(sid, true))
	require.Eventually(t, func() bool {
		return calls.Load() > paused
	}, time.Second, 5*time.Millisecond)
}

func TestCloseSessionStopsViews(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))
	sid, _ := p.CreateSession(true)
	a, err := p.AddView(sid, "leases", nil)
	require.NoError(t, err)
	b, err := p.AddView(sid, "invoices", map[string]string{"status": "overdue"})
	require.NoError(t, err)

	require.NoError(t, p.CloseSession(sid))

	for _, id := range []string{a.ID, b.ID} {
		_, err := p.ViewStatus(id)
		assert.ErrorIs(t, err, ErrViewNotFound)
		_, ok := p.store.Get(id)
		assert.False(t, ok)
	}
}

func TestSweep(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))

	var mu sync.Mutex
	now := time.Now()
	p.mu.Lock()
	p.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	p.mu.Unlock()
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	quiet, _ := p.CreateSession(true)
	chatty, _ := p.CreateSession(true)
	view, err := p.AddView(quiet, "payments", nil)
	require.NoError(t, err)

	advance(90 * time.Second)
	require.NoError(t, p.SetVisibility(chatty, true))
	p.sweep()

	v, err := p.Visible(quiet)
	require.NoError(t, err)
	assert.False(t, v, "idle session is hidden")
	v, _ = p.Visible(chatty)
	assert.True(t, v)

	require.Eventually(t, func() bool {
		st, _ := p.ViewStatus(view.ID)
		return st.Paused
	}, time.Second, 5*time.Millisecond)

	advance(10 * time.Minute)
	p.sweep()

	assert.Equal(t, 0, p.Sessions())
	_, err = p.ViewStatus(view.ID)
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestSweepKeepsSessionWithLateHeartbeat(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))

	now := time.Now()
	p.mu.Lock()
	p.now = func() time.Time { return now }
	p.mu.Unlock()

	sid, err := p.CreateSession(true)
	require.NoError(t, err)

	// The sweep picked the session as idle, then a heartbeat landed before
	// it was hidden.
	now = now.Add(90 * time.Second)
	sweptAt := now
	p.mu.Lock()
	s := p.sessions[sid]
	p.mu.Unlock()

	require.NoError(t, p.SetVisibility(sid, true))
	p.hideIdle(s, sweptAt)

	v, err := p.Visible(sid)
	require.NoError(t, err)
	assert.True(t, v, "heartbeat after selection keeps the session visible")

	// Without a heartbeat the same session is hidden.
	now = now.Add(90 * time.Second)
	p.hideIdle(s, now)
	v, _ = p.Visible(sid)
	assert.False(t, v)
}

func TestShutdown(t *testing.T) {
	p := startPool(t, testConfig(), staticFetcher(nil))
	sid, _ := p.CreateSession(true)
	view, err := p.AddView(sid, "maintenance_requests", nil)
	require.NoError(t, err)

	p.cancel()
	require.NoError(t, p.g.Wait())

	assert.False(t, p.Running())
	assert.Equal(t, 0, p.Sessions())
	assert.Equal(t, 0, p.store.Len())

	_, err = p.AddView(sid, "invoices", nil)
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, err = p.CreateSession(true)
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, err = p.ViewStatus(view.ID)
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestRefresherPanicIsReported(t *testing.T) {
	fetcher := contracts.FetcherFunc(func(ctx context.Context, resource types.Resource, query map[string]string) ([]byte, error) {
		panic("boom")
	})
	p := startPool(t, testConfig(), fetcher)
	sid, _ := p.CreateSession(true)
	view, err := p.AddView(sid, "units", nil)
	require.NoError(t, err)

	select {
	case err := <-p.errCh:
		assert.Contains(t, err.Error(), "panic")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for panic report")
	}

	require.Eventually(t, func() bool {
		_, err := p.ViewStatus(view.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	// The pool keeps running.
	assert.True(t, p.Running())
}
