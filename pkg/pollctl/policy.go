/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pollctl

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by DefaultPolicy.
const (
	DefaultInitialInterval = 30 * time.Second
	DefaultMaxInterval     = 5 * time.Minute
	DefaultMultiplier      = 2.0
)

// ErrInvalidPolicy is wrapped by every policy validation error.
var ErrInvalidPolicy = errors.New("invalid poll policy")

// ChangeFunc reports whether next differs from previous.
type ChangeFunc func(previous, next any) bool

// Policy configures a Controller.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	PauseOnHidden   bool
	UseBackoff      bool
	// HasChanged defaults to DeepChanged when nil.
	HasChanged ChangeFunc
	// OnVisibilityChange, when set, is called after the controller has
	// recorded a visibility change, so RecommendedInterval already reflects
	// it. It runs on the notifying goroutine and must not block.
	OnVisibilityChange func(visible bool)
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		PauseOnHidden:   true,
		UseBackoff:      true,
		HasChanged:      DeepChanged,
	}
}

// Validate checks the policy constraints.
func (p Policy) Validate() error {
	if p.InitialInterval <= 0 {
		return fmt.Errorf("%w: initial interval must be positive, got %v", ErrInvalidPolicy, p.InitialInterval)
	}
	if p.MaxInterval < p.InitialInterval {
		return fmt.Errorf("%w: max interval %v is below initial interval %v", ErrInvalidPolicy, p.MaxInterval, p.InitialInterval)
	}
	if p.UseBackoff && !(p.Multiplier > 1) {
		return fmt.Errorf("%w: backoff multiplier must be greater than 1, got %v", ErrInvalidPolicy, p.Multiplier)
	}
	return nil
}
