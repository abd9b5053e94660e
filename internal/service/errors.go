package service

import (
	"fmt"

	"github.com/loopcrm/channels-server/internal/domain/channel"
)

// Business errors surfaced by provisioning. All are recoverable by the caller
// retrying with corrected input; none is process-fatal. Store failures are
// returned wrapped and unclassified — handlers map them to HTTP 500.

// InvalidRequestError means a required field is missing or malformed.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string { return "invalid request: " + e.Reason }

// QuotaExceededError means the tenant is at its connection limit.
type QuotaExceededError struct {
	Current int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("connection limit reached (%d of %d in use); remove a connection or raise the workspace limit", e.Current, e.Limit)
}

// DuplicateNameError means the tenant already has a channel with this name.
// Provisioning is intentionally not idempotent under retry with the same
// name: retries must use a new name or first delete the failed row.
type DuplicateNameError struct {
	Name           string
	ExistingID     int64
	ExistingStatus channel.Status
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("a connection named %q already exists (id %d, status %s)", e.Name, e.ExistingID, e.ExistingStatus)
}

// IllegalTransitionError means a status event would violate the lifecycle
// transition table.
type IllegalTransitionError struct {
	ChannelID int64
	From, To  channel.Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("channel %d: illegal status transition %s → %s", e.ChannelID, e.From, e.To)
}
