/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/types"
)

var logger = logging.New("parser")

// ErrUnknownResource is returned for resources the parser has no type for.
var ErrUnknownResource = types.ErrUnknownResource

// envelope is the wrapper some backend endpoints put around their data.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Decode converts a backend response body into typed records. List
// resources decode to a slice of their record type, the profile decodes to
// *types.Profile. Both bare bodies and {"data": ...} envelopes are accepted.
func Decode(resource types.Resource, raw []byte) (any, error) {
	body := unwrap(raw)

	switch resource {
	case types.ResourceMaintenanceRequests:
		return decodeList[types.MaintenanceRequest](resource, body)
	case types.ResourceInvoices:
		return decodeList[types.Invoice](resource, body)
	case types.ResourcePayments:
		return decodeList[types.Payment](resource, body)
	case types.ResourceLeases:
		return decodeList[types.Lease](resource, body)
	case types.ResourceUnits:
		return decodeList[types.Unit](resource, body)
	case types.ResourceNotifications:
		return decodeList[types.Notification](resource, body)
	case types.ResourceProfile:
		if isNull(body) {
			return nil, nil
		}
		var p types.Profile
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", resource, err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
}

// decodeList decodes a JSON array. A null or empty body yields an empty,
// non-nil slice so "no rows" compares equal across polls.
func decodeList[T any](resource types.Resource, body []byte) ([]T, error) {
	out := []T{}
	if isNull(body) {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", resource, err)
	}
	if out == nil {
		out = []T{}
	}
	logger.Debugf("decoded %d %s records", len(out), resource)
	return out, nil
}

// unwrap returns the contents of a {"data": ...} envelope, or raw itself.
func unwrap(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Data == nil {
		return trimmed
	}
	return bytes.TrimSpace(env.Data)
}

func isNull(body []byte) bool {
	return len(body) == 0 || bytes.Equal(body, []byte("null"))
}
