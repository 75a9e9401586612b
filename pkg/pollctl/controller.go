/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pollctl decides how often a dashboard view should refetch its
// data. The interval widens exponentially while fetched data stays the
// same, snaps back to the initial interval as soon as it changes, and is
// withheld entirely while the view is hidden.
//
// A Controller is owned by a single caller. Only the visibility listener
// may run on another goroutine.
package pollctl

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/visibility"
)

var logger = logging.New("pollctl")

// unchangedBeforeBackoff is the number of consecutive unchanged
// observations required before the interval starts to widen.
const unchangedBeforeBackoff = 2

// State is a point-in-time copy of a controller's bookkeeping.
type State struct {
	CurrentInterval time.Duration
	UnchangedStreak int
	Visible         bool
	Disposed        bool
}

// Controller is an adaptive poll interval controller.
type Controller struct {
	policy Policy
	growth *backoff.ExponentialBackOff

	current time.Duration
	streak  int
	last    any

	visible     atomic.Bool
	disposed    atomic.Bool
	unsubscribe func()
	disposeOnce sync.Once
}

// New creates a controller for policy. signal may be nil when no visibility
// source exists, in which case pausing is disabled.
func New(policy Policy, signal visibility.Signal) (*Controller, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.HasChanged == nil {
		policy.HasChanged = DeepChanged
	}
	if signal == nil {
		policy.PauseOnHidden = false
	}

	c := &Controller{
		policy:      policy,
		unsubscribe: func() {},
	}
	if policy.UseBackoff {
		c.growth = &backoff.ExponentialBackOff{
			InitialInterval:     policy.InitialInterval,
			RandomizationFactor: 0,
			Multiplier:          policy.Multiplier,
			MaxInterval:         policy.MaxInterval,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		}
	}
	c.reset()

	c.visible.Store(true)
	if signal != nil {
		c.visible.Store(signal.Visible())
	}
	if policy.PauseOnHidden {
		c.unsubscribe = signal.Subscribe(func(v bool) {
			c.visible.Store(v)
			if c.policy.OnVisibilityChange != nil {
				c.policy.OnVisibilityChange(v)
			}
		})
	}
	return c, nil
}

// RecommendedInterval returns the interval to wait before the next fetch.
// The second result is false while the view is hidden and pausing is
// enabled, and after Dispose; callers must not schedule a fetch then.
func (c *Controller) RecommendedInterval() (time.Duration, bool) {
	if c.disposed.Load() {
		return 0, false
	}
	if c.policy.PauseOnHidden && !c.visible.Load() {
		return 0, false
	}
	return c.current, true
}

// OnDataObserved feeds a freshly fetched payload into the controller. nil
// means "no data yet"; it only counts as unchanged after another nil.
func (c *Controller) OnDataObserved(payload any) {
	if c.disposed.Load() || !c.policy.UseBackoff {
		return
	}

	if c.changed(payload) {
		if c.current != c.policy.InitialInterval {
			logger.Debugf("data changed, interval reset to %v", c.policy.InitialInterval)
		}
		c.reset()
	} else {
		c.streak++
		if c.streak >= unchangedBeforeBackoff {
			c.current = c.clamp(c.growth.NextBackOff())
			logger.Debugf("data unchanged %d times, interval widened to %v", c.streak, c.current)
		}
	}

	c.last = payload
}

// ResetInterval drops any accumulated backoff, e.g. after a manual refresh
// or a filter change.
func (c *Controller) ResetInterval() {
	if c.disposed.Load() {
		return
	}
	c.reset()
}

// Dispose removes the visibility listener. Later calls on the controller
// are no-ops; Dispose itself may be called any number of times.
func (c *Controller) Dispose() {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)
		c.unsubscribe()
		c.last = nil
	})
}

// State returns a copy of the controller's bookkeeping.
func (c *Controller) State() State {
	return State{
		CurrentInterval: c.current,
		UnchangedStreak: c.streak,
		Visible:         c.visible.Load(),
		Disposed:        c.disposed.Load(),
	}
}

// Policy returns the effective policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

func (c *Controller) changed(payload any) (changed bool) {
	// Nothing observed yet counts as nil, and nil only matches nil.
	if c.last == nil || payload == nil {
		return c.last != nil || payload != nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("change comparator panicked, treating data as changed: %v", r)
			changed = true
		}
	}()
	return c.policy.HasChanged(c.last, payload)
}

func (c *Controller) reset() {
	c.streak = 0
	c.current = c.policy.InitialInterval
	if c.growth != nil {
		c.growth.Reset()
		// The first value after Reset is InitialInterval itself.
		c.growth.NextBackOff()
	}
}

func (c *Controller) clamp(d time.Duration) time.Duration {
	if d < c.policy.InitialInterval {
		return c.policy.InitialInterval
	}
	if d > c.policy.MaxInterval {
		return c.policy.MaxInterval
	}
	return d
}

// String implements fmt.Stringer for logging.
func (c *Controller) String() string {
	s := c.State()
	return fmt.Sprintf("interval=%v streak=%d visible=%t disposed=%t", s.CurrentInterval, s.UnchangedStreak, s.Visible, s.Disposed)
}
