/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pollctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type opaque struct {
	hidden int
}

func TestDeepChanged(t *testing.T) {
	a := []record{{ID: "1", Status: "open"}}
	b := []record{{ID: "1", Status: "open"}}
	c := []record{{ID: "1", Status: "closed"}}

	assert.False(t, DeepChanged(a, b))
	assert.True(t, DeepChanged(a, c))
	assert.False(t, DeepChanged(map[string]int{"a": 1, "b": 2}, map[string]int{"b": 2, "a": 1}))
	assert.True(t, DeepChanged(a, nil))
}

func TestDeepChangedUnencodable(t *testing.T) {
	ch := make(chan int)
	assert.True(t, DeepChanged(ch, ch))
}

func TestStructuralChanged(t *testing.T) {
	a := []record{{ID: "1", Status: "open"}}
	b := []record{{ID: "1", Status: "open"}}
	assert.False(t, StructuralChanged(a, b))
	assert.True(t, StructuralChanged(a, []record{{ID: "2"}}))

	assert.Panics(t, func() { StructuralChanged(opaque{1}, opaque{1}) })
}

func TestIdentityChanged(t *testing.T) {
	assert.False(t, IdentityChanged("a", "a"))
	assert.True(t, IdentityChanged("a", "b"))
	assert.Panics(t, func() { IdentityChanged([]int{1}, []int{1}) })
}

func TestVersionStamp(t *testing.T) {
	cmp := VersionStamp(func(p any) string { return p.(record).Status })

	assert.False(t, cmp(record{ID: "1", Status: "v1"}, record{ID: "2", Status: "v1"}))
	assert.True(t, cmp(record{ID: "1", Status: "v1"}, record{ID: "1", Status: "v2"}))
}

func TestComparatorByName(t *testing.T) {
	for _, name := range []string{"", "deep", "DEEP", " structural ", "identity"} {
		fn, err := ComparatorByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, fn, name)
	}

	_, err := ComparatorByName("fuzzy")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, DefaultInitialInterval, p.InitialInterval)
	assert.Equal(t, DefaultMaxInterval, p.MaxInterval)
	assert.Equal(t, DefaultMultiplier, p.Multiplier)
	assert.True(t, p.PauseOnHidden)
	assert.True(t, p.UseBackoff)
	assert.NotNil(t, p.HasChanged)
}
