/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownResource is returned for resource names outside Resources.
var ErrUnknownResource = errors.New("unknown resource")

// Resource names a backend listing a dashboard view can poll.
type Resource string

const (
	ResourceMaintenanceRequests Resource = "maintenance_requests"
	ResourceInvoices            Resource = "invoices"
	ResourcePayments            Resource = "payments"
	ResourceLeases              Resource = "leases"
	ResourceUnits               Resource = "units"
	ResourceNotifications       Resource = "notifications"
	ResourceProfile             Resource = "profile"
)

// Resources lists every pollable resource.
var Resources = []Resource{
	ResourceMaintenanceRequests,
	ResourceInvoices,
	ResourcePayments,
	ResourceLeases,
	ResourceUnits,
	ResourceNotifications,
	ResourceProfile,
}

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	for _, r := range Resources {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
}

// View identifies one polled listing of a dashboard session.
type View struct {
	ID        string            `json:"view_id"`
	SessionID string            `json:"session_id"`
	Resource  Resource          `json:"resource"`
	Query     map[string]string `json:"query,omitempty"`
}

// Snapshot is the latest payload fetched for a view.
type Snapshot struct {
	ViewID    string
	Resource  Resource
	Payload   []byte
	ETag      string
	FetchedAt time.Time
	Changed   bool
}

// MaintenanceRequest is a tenant-reported repair ticket.
type MaintenanceRequest struct {
	ID          string     `json:"id"`
	UnitID      string     `json:"unit_id"`
	TenantID    string     `json:"tenant_id"`
	CaretakerID string     `json:"caretaker_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Invoice is a rent or service charge issued to a tenant.
type Invoice struct {
	ID        string    `json:"id"`
	LeaseID   string    `json:"lease_id"`
	TenantID  string    `json:"tenant_id"`
	Number    string    `json:"number"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	DueDate   string    `json:"due_date"`
	IssuedAt  time.Time `json:"issued_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payment settles all or part of an invoice.
type Payment struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	TenantID  string    `json:"tenant_id"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	Status    string    `json:"status"`
	PaidAt    time.Time `json:"paid_at"`
}

// Lease binds a tenant to a unit for a term.
type Lease struct {
	ID          string    `json:"id"`
	UnitID      string    `json:"unit_id"`
	TenantID    string    `json:"tenant_id"`
	LandlordID  string    `json:"landlord_id"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	MonthlyRent string    `json:"monthly_rent"`
	Deposit     string    `json:"deposit,omitempty"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Unit is a rentable space within a property.
type Unit struct {
	ID          string `json:"id"`
	PropertyID  string `json:"property_id"`
	Label       string `json:"label"`
	Bedrooms    int    `json:"bedrooms"`
	Bathrooms   int    `json:"bathrooms"`
	MonthlyRent string `json:"monthly_rent"`
	Occupied    bool   `json:"occupied"`
	CaretakerID string `json:"caretaker_id,omitempty"`
}

// Notification is an in-portal message for a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the signed-in user's account data.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}
