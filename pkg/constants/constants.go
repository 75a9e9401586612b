/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package constants

import "time"

// Backend resource paths
const (
	PathMaintenanceRequests = "/api/maintenance-requests"
	PathInvoices            = "/api/invoices"
	PathPayments            = "/api/payments"
	PathLeases              = "/api/leases"
	PathUnits               = "/api/units"
	PathNotifications       = "/api/notifications"
	PathProfile             = "/api/profile"
)

// Polling defaults
const (
	DefaultInitialInterval = 30 * time.Second
	DefaultMaxInterval     = 5 * time.Minute
	DefaultMultiplier      = 2.0
	DefaultComparator      = "deep"
)

// Session defaults
const (
	DefaultIdleTimeout   = 2 * time.Minute
	DefaultSessionTTL    = 30 * time.Minute
	DefaultSweepInterval = 15 * time.Second
	DefaultMaxSnapshots  = 1024
	MaxViewsPerSession   = 32
)

// Backend client defaults
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultRatePerSec     = 10.0
	DefaultBurst          = 10
	DefaultMaxRetries     = 3
	MaxResponseBytes      = 8 << 20
)
