/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/estatehub/portal-sync/pkg/constants"
	"github.com/estatehub/portal-sync/pkg/contracts"
	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/metrics"
	"github.com/estatehub/portal-sync/pkg/pollctl"
	"github.com/estatehub/portal-sync/pkg/refresher"
	"github.com/estatehub/portal-sync/pkg/types"
	"github.com/estatehub/portal-sync/pkg/visibility"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var logger = logging.New("workerpool")

var (
	// ErrSessionNotFound is wrapped when a session ID is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrViewNotFound is wrapped when a view ID is unknown or already stopped.
	ErrViewNotFound = errors.New("view not found")
	// ErrPoolClosed is returned before Start and after its context is done.
	ErrPoolClosed = errors.New("worker pool is not running")
	// ErrTooManyViews is wrapped when a session is at Config.MaxViews.
	ErrTooManyViews = errors.New("too many views for session")
)

// Config controls polling and session expiry.
type Config struct {
	Policy        pollctl.Policy
	MaxRetries    int
	IdleTimeout   time.Duration
	SessionTTL    time.Duration
	SweepInterval time.Duration
	MaxViews      int
}

type session struct {
	id       string
	tracker  *visibility.Tracker
	lastSeen time.Time
	views    map[string]struct{}
}

type worker struct {
	refresher *refresher.Refresher
	cancel    context.CancelFunc
	done      chan struct{}
}

// Pool owns dashboard sessions and runs one refresher per view.
type Pool struct {
	cfg     Config
	fetcher contracts.Fetcher
	store   contracts.SnapshotStore
	now     func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	g        *errgroup.Group
	errCh    chan<- error
	running  bool
	sessions map[string]*session
	views    map[string]*worker
}

// New constructs a Pool. fetcher and store are injected.
func New(cfg Config, fetcher contracts.Fetcher, store contracts.SnapshotStore) *Pool {
	// sensible defaults
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = constants.DefaultIdleTimeout
	}
	if cfg.SessionTTL < cfg.IdleTimeout {
		cfg.SessionTTL = max(constants.DefaultSessionTTL, cfg.IdleTimeout)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = constants.DefaultSweepInterval
	}
	if cfg.MaxViews <= 0 {
		cfg.MaxViews = constants.MaxViewsPerSession
	}

	return &Pool{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    store,
		now:      time.Now,
		sessions: make(map[string]*session),
		views:    make(map[string]*worker),
	}
}

// Start runs the session janitor and accepts views until ctx is cancelled.
// Refresher panics are reported on errCh without stopping the pool.
func (p *Pool) Start(ctx context.Context, errCh chan<- error) *errgroup.Group {
	g, ctx := errgroup.WithContext(ctx)

	p.mu.Lock()
	p.ctx = ctx
	p.g = g
	p.errCh = errCh
	p.running = true
	p.mu.Unlock()

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				p.report(fmt.Errorf("janitor panic: %v", r))
			}
			p.stop()
		}()
		logger.Infof("janitor started (idle=%v ttl=%v sweep=%v)", p.cfg.IdleTimeout, p.cfg.SessionTTL, p.cfg.SweepInterval)
		p.janitor(ctx)
		logger.Info("janitor stopped")
		return nil
	})

	return g
}

// CreateSession registers a dashboard client and returns its ID.
func (p *Pool) CreateSession(visible bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return "", ErrPoolClosed
	}

	s := &session{
		id:       uuid.NewString(),
		tracker:  visibility.NewTracker(visible),
		lastSeen: p.now(),
		views:    make(map[string]struct{}),
	}
	p.sessions[s.id] = s
	metrics.ActiveSessions.Inc()
	logger.Infof("session %s opened (visible=%t)", s.id, visible)
	return s.id, nil
}

// SetVisibility records the visibility reported by a session. Every report
// also counts as a heartbeat.
func (p *Pool) SetVisibility(sessionID string, visible bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.lastSeen = p.now()
	if s.tracker.Visible() != visible {
		logger.Debugf("session %s visible=%t", sessionID, visible)
	}
	s.tracker.Set(visible)
	return nil
}

// Visible reports the last visibility of a session.
func (p *Pool) Visible(sessionID string) (bool, error) {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	p.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s.tracker.Visible(), nil
}

// CloseSession stops every view of a session and forgets it.
func (p *Pool) CloseSession(sessionID string) error {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(p.sessions, sessionID)
	workers := make([]*worker, 0, len(s.views))
	for id := range s.views {
		if w, ok := p.views[id]; ok {
			workers = append(workers, w)
			delete(p.views, id)
		}
	}
	p.mu.Unlock()

	metrics.ActiveSessions.Dec()
	stopAll(workers)
	logger.Infof("session %s closed (%d views)", sessionID, len(workers))
	return nil
}

// AddView starts polling resource for a session.
func (p *Pool) AddView(sessionID, resource string, query map[string]string) (types.View, error) {
	res, err := types.ParseResource(resource)
	if err != nil {
		return types.View{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return types.View{}, ErrPoolClosed
	}
	s, ok := p.sessions[sessionID]
	if !ok {
		return types.View{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if len(s.views) >= p.cfg.MaxViews {
		return types.View{}, fmt.Errorf("%w: limit is %d", ErrTooManyViews, p.cfg.MaxViews)
	}

	view := types.View{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Resource:  res,
		Query:     copyQuery(query),
	}
	r, err := refresher.New(view, p.fetcher, p.cfg.Policy, s.tracker, p.store, refresher.Options{
		MaxRetries: p.cfg.MaxRetries,
	})
	if err != nil {
		return types.View{}, err
	}

	ctx, cancel := context.WithCancel(p.ctx)
	w := &worker{refresher: r, cancel: cancel, done: make(chan struct{})}
	p.views[view.ID] = w
	s.views[view.ID] = struct{}{}
	s.lastSeen = p.now()

	// The janitor holds the group open while running is true, so Go never
	// races with Wait here.
	p.g.Go(func() error {
		defer close(w.done)
		defer p.detach(view, w)
		metrics.ActiveViews.Inc()
		defer metrics.ActiveViews.Dec()

		if err := r.Run(ctx); err != nil {
			logger.Errorf("view %s: %v", view.ID, err)
			p.report(err)
		}
		return nil
	})

	logger.Infof("view %s added to session %s (%s)", view.ID, sessionID, res)
	return view, nil
}

// RemoveView stops a view and waits until its controller is disposed.
func (p *Pool) RemoveView(viewID string) error {
	p.mu.Lock()
	w, ok := p.views[viewID]
	if ok {
		delete(p.views, viewID)
		if s, ok := p.sessions[w.refresher.View().SessionID]; ok {
			delete(s.views, viewID)
		}
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
	}
	stopAll([]*worker{w})
	logger.Infof("view %s removed", viewID)
	return nil
}

// RefreshView requests an immediate fetch for a view.
func (p *Pool) RefreshView(viewID string) error {
	w, err := p.worker(viewID)
	if err != nil {
		return err
	}
	w.refresher.Refresh()
	return nil
}

// ViewStatus returns the poll state of a view.
func (p *Pool) ViewStatus(viewID string) (types.ViewStatus, error) {
	w, err := p.worker(viewID)
	if err != nil {
		return types.ViewStatus{}, err
	}
	return w.refresher.Status(), nil
}

// Snapshot returns the latest payload of a view. The boolean is false while
// the first fetch is still outstanding.
func (p *Pool) Snapshot(viewID string) (types.Snapshot, bool, error) {
	if _, err := p.worker(viewID); err != nil {
		return types.Snapshot{}, false, err
	}
	snap, ok := p.store.Get(viewID)
	return snap, ok, nil
}

// ListViews returns the status of every view of a session, ordered by ID.
func (p *Pool) ListViews(sessionID string) ([]types.ViewStatus, error) {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	refreshers := make([]*refresher.Refresher, 0, len(s.views))
	for id := range s.views {
		if w, ok := p.views[id]; ok {
			refreshers = append(refreshers, w.refresher)
		}
	}
	p.mu.Unlock()

	out := make([]types.ViewStatus, 0, len(refreshers))
	for _, r := range refreshers {
		out = append(out, r.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Sessions returns the number of open sessions.
func (p *Pool) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Running reports whether the pool accepts new sessions and views.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pool) worker(viewID string) (*worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.views[viewID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
	}
	return w, nil
}

// detach forgets a view whose refresher returned on its own.
func (p *Pool) detach(view types.View, w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.views[view.ID] != w {
		return
	}
	delete(p.views, view.ID)
	if s, ok := p.sessions[view.SessionID]; ok {
		delete(s.views, view.ID)
	}
}

func (p *Pool) janitor(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep hides sessions silent for IdleTimeout and closes sessions silent
// for SessionTTL.
func (p *Pool) sweep() {
	now := p.now()

	var idle []*session
	var expired []string
	p.mu.Lock()
	for id, s := range p.sessions {
		silent := now.Sub(s.lastSeen)
		switch {
		case silent >= p.cfg.SessionTTL:
			expired = append(expired, id)
		case silent >= p.cfg.IdleTimeout:
			idle = append(idle, s)
		}
	}
	p.mu.Unlock()

	for _, s := range idle {
		p.hideIdle(s, now)
	}
	for _, id := range expired {
		logger.Infof("session %s expired", id)
		if err := p.CloseSession(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			logger.Warnf("close expired session %s: %v", id, err)
		}
	}
}

// hideIdle marks s hidden unless a heartbeat arrived after now-IdleTimeout.
// The check and the change happen under p.mu, which SetVisibility also
// holds while applying a report.
func (p *Pool) hideIdle(s *session, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessions[s.id] != s || now.Sub(s.lastSeen) < p.cfg.IdleTimeout {
		return
	}
	if s.tracker.Visible() {
		logger.Infof("session %s idle, pausing its views", s.id)
		s.tracker.Set(false)
	}
}

// stop refuses new work and forgets every session. Refreshers exit on
// their own because their contexts derive from the pool's.
func (p *Pool) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = false
	metrics.ActiveSessions.Sub(float64(len(p.sessions)))
	p.sessions = make(map[string]*session)
	for _, w := range p.views {
		w.cancel()
	}
	p.views = make(map[string]*worker)
}

func (p *Pool) report(err error) {
	if p.errCh == nil {
		return
	}
	select {
	case p.errCh <- err:
	default:
	}
}

func stopAll(workers []*worker) {
	for _, w := range workers {
		w.cancel()
	}
	for _, w := range workers {
		<-w.done
	}
}

func copyQuery(q map[string]string) map[string]string {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}
