/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package visibility carries the "is anyone looking at this" signal of a
// dashboard client. A Tracker is shared by every view of one client; each
// view registers and removes its own listener.
package visibility

import (
	"sync"
)

// Signal is a boolean visibility flag plus change notification.
type Signal interface {
	// Visible reports the current visibility.
	Visible() bool
	// Subscribe registers fn to be called with the new value on every
	// change. The returned func removes the listener and may be called
	// any number of times.
	Subscribe(fn func(visible bool)) (unsubscribe func())
}

// Tracker is the Signal implementation backed by client reports.
type Tracker struct {
	mu        sync.Mutex
	visible   bool
	nextID    uint64
	listeners map[uint64]func(bool)
}

// NewTracker returns a Tracker with the given initial visibility.
func NewTracker(initial bool) *Tracker {
	return &Tracker{
		visible:   initial,
		listeners: make(map[uint64]func(bool)),
	}
}

// Visible reports the current visibility.
func (t *Tracker) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Set records a new visibility value. Listeners are only notified when the
// value actually changes, and are called outside the lock so they may call
// back into the tracker.
func (t *Tracker) Set(visible bool) {
	t.mu.Lock()
	if t.visible == visible {
		t.mu.Unlock()
		return
	}
	t.visible = visible
	fns := make([]func(bool), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}

// Subscribe registers fn for change notifications.
func (t *Tracker) Subscribe(fn func(visible bool)) func() {
	if fn == nil {
		return func() {}
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Listeners returns the number of registered listeners.
func (t *Tracker) Listeners() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}
