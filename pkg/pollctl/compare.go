/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pollctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Comparator names accepted by ComparatorByName.
const (
	ComparatorDeep       = "deep"
	ComparatorStructural = "structural"
	ComparatorIdentity   = "identity"
)

// DeepChanged compares the JSON encodings of both payloads. Payloads that
// cannot be encoded are reported as changed.
func DeepChanged(previous, next any) bool {
	a, err := json.Marshal(previous)
	if err != nil {
		return true
	}
	b, err := json.Marshal(next)
	if err != nil {
		return true
	}
	return !bytes.Equal(a, b)
}

// StructuralChanged compares payloads with go-cmp. cmp panics on unexported
// fields; the controller treats that as a change.
func StructuralChanged(previous, next any) bool {
	return !cmp.Equal(previous, next)
}

// IdentityChanged compares the interface values with ==. Incomparable payloads
// such as slices or maps panic, which the controller treats as a change.
func IdentityChanged(previous, next any) bool {
	return previous != next
}

// VersionStamp builds a comparator that only looks at a stamp derived from
// each payload, e.g. an updated_at or revision field.
func VersionStamp(stamp func(payload any) string) ChangeFunc {
	return func(previous, next any) bool {
		return stamp(previous) != stamp(next)
	}
}

// ComparatorByName resolves a configured comparator name.
func ComparatorByName(name string) (ChangeFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ComparatorDeep:
		return DeepChanged, nil
	case ComparatorStructural:
		return StructuralChanged, nil
	case ComparatorIdentity:
		return IdentityChanged, nil
	default:
		return nil, fmt.Errorf("%w: unknown comparator %q", ErrInvalidPolicy, name)
	}
}
