package channel

import (
	"encoding/json"
	"time"
)

// Channel is one provisioned messaging endpoint (a WhatsApp session) owned by
// a tenant. It is created by the provisioning flow in StatusCreating and moves
// through the lifecycle as the provider reports connection progress, mostly
// via out-of-band webhook callbacks.
type Channel struct {
	ID               int64           `json:"id"`                 //
	TenantID         string          `json:"tenant_id"`          //
	Name             string          `json:"name"`               // unique per tenant
	Status           Status          `json:"status"`             //
	ProviderKind     string          `json:"provider_kind"`      // see domain/provider.Kind
	ProviderConfigID int64           `json:"provider_config_id"` //
	PhoneNumber      *string         `json:"phone_number"`       // nullable until known
	QRCode           *string         `json:"qr_code"`            // nullable, transient; last QR payload
	RemoteInstanceID *string         `json:"remote_instance_id"` // nullable; provider-side instance ref
	Metadata         json.RawMessage `json:"metadata"`           // opaque provider blob
	Routing          Routing         `json:"routing"`            //
	IsDefault        bool            `json:"is_default"`         // exactly one true per tenant
	HistorySync      HistorySync     `json:"history_sync"`       //
	CreatedAt        time.Time       `json:"created_at"`         //
	UpdatedAt        time.Time       `json:"updated_at"`         //
}

// Routing carries optional default-routing hints for inbound conversations.
type Routing struct {
	PipelineID  *string `json:"pipeline_id"`  // nullable
	ColumnID    *string `json:"column_id"`    // nullable
	DisplayName *string `json:"display_name"` // nullable
	QueueID     *string `json:"queue_id"`     // nullable
}

// HistorySync tracks message-history recovery bookkeeping. The window is
// chosen at provisioning time; progress is driven later by webhook events.
type HistorySync struct {
	Window    RecoveryWindow `json:"window"`     //
	Days      int            `json:"days"`       // derived from Window
	Status    *string        `json:"status"`     // nullable; "syncing" | "done"
	StartedAt *time.Time     `json:"started_at"` // nullable
	DoneAt    *time.Time     `json:"done_at"`    // nullable
}

// RecoveryWindow selects how far back message history should be recovered.
type RecoveryWindow string

const (
	RecoveryNone    RecoveryWindow = "none"
	RecoveryWeek    RecoveryWindow = "week"
	RecoveryMonth   RecoveryWindow = "month"
	RecoveryQuarter RecoveryWindow = "quarter"
)

// Days maps the window to a day count. Unknown values map to 0.
func (w RecoveryWindow) Days() int {
	switch w {
	case RecoveryWeek:
		return 7
	case RecoveryMonth:
		return 30
	case RecoveryQuarter:
		return 90
	default:
		return 0
	}
}

// Valid reports whether w is one of the enumerated windows.
func (w RecoveryWindow) Valid() bool {
	switch w {
	case RecoveryNone, RecoveryWeek, RecoveryMonth, RecoveryQuarter:
		return true
	}
	return false
}

const (
	SyncStatusSyncing = "syncing"
	SyncStatusDone    = "done"
)
