// Package gateway contains the provider adapters: everything kind-specific
// about talking to a messaging provider (wire formats, auth header schemes,
// error taxonomies) is contained here. The provisioning service only sees the
// Client interface and the normalized Outcome; adding a third provider means
// implementing Client, never touching the orchestrator.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/loopcrm/channels-server/internal/domain/provider"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every outbound provider call. A timeout is treated
// like any other transport failure: the whole provisioning attempt is rolled
// back and the caller may retry with a new channel name.
const DefaultTimeout = 30 * time.Second

// CreateInstanceRequest is the provisioning intent handed to an adapter.
type CreateInstanceRequest struct {
	Name        string // instance/session name, the channel name
	CallbackURL string // this platform's ingestion endpoint for the channel, token included
	PhoneNumber string // optional; some providers bind the session to a number upfront
}

// Outcome is the normalized result of a successful instance creation.
// Kind-specific response shapes are flattened here; absence of a QR payload is
// not a failure (the first webhook will deliver one).
type Outcome struct {
	Metadata            json.RawMessage // raw provider response, persisted opaquely
	QRPayload           string          // inline QR image or pairing code, if any
	RemoteInstanceID    string          // provider-side instance reference, if any
	RemoteInstanceToken string          // provider-side per-instance token, if any
	Connected           bool            // provider reported the session already open
	PhoneNumber         string          // provider-reported owning number, if any
}

// Client is the capability interface implemented once per provider kind.
type Client interface {
	// CreateInstance provisions a remote messaging instance.
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (*Outcome, error)

	// SubscribeInstance activates callbacks for a just-created instance.
	// Best-effort: failures are logged by the caller, never fatal. Only
	// meaningful for the SaaS kind; other adapters return nil.
	SubscribeInstance(ctx context.Context, instanceID, instanceToken string) error
}

// Options tune adapter construction.
type Options struct {
	Timeout time.Duration
	Log     *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

// New builds the adapter for the config's provider kind.
func New(cfg *provider.Config, opts Options) (Client, error) {
	opts.setDefaults()

	switch cfg.Kind {
	case provider.KindSelfHosted:
		return newEvolutionClient(cfg, opts), nil
	case provider.KindSaaS:
		return newZAPIClient(cfg, opts), nil
	}
	return nil, fmt.Errorf("unsupported provider kind %q", cfg.Kind)
}

// ---- failure taxonomy ----

// RejectCategory classifies provider rejections for operator diagnosis. The
// end user always sees a single readable sentence regardless of category.
type RejectCategory string

const (
	RejectAuth    RejectCategory = "auth"    // wrong credential kind, e.g. instance token where integrator token required
	RejectBackend RejectCategory = "backend" // provider's own infrastructure unavailable
	RejectPayload RejectCategory = "payload" // provider judged our request malformed
	RejectUnknown RejectCategory = "unknown"
)

// RejectedError means the provider answered with a non-success status.
type RejectedError struct {
	StatusCode int
	Message    string // provider-supplied message, truncated
	Category   RejectCategory
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request (%s, HTTP %d): %s", e.Category, e.StatusCode, e.Message)
}

// TransportReason tags transport-level failures.
type TransportReason string

const (
	TransportTimeout           TransportReason = "timeout"
	TransportConnectionRefused TransportReason = "connection_refused"
	TransportOther             TransportReason = "other"
)

// TransportError means the provider could not be reached at all.
type TransportError struct {
	Reason TransportReason
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider unreachable (%s): %v", e.Reason, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IncompleteResponseError means the provider answered success but omitted a
// field the protocol requires. Treated as a protocol violation, not a
// transient condition.
type IncompleteResponseError struct {
	Missing string
}

func (e *IncompleteResponseError) Error() string {
	return fmt.Sprintf("provider response missing required field %q", e.Missing)
}

// classifyTransport maps a client-side request error to a TransportError.
func classifyTransport(err error) *TransportError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &TransportError{Reason: TransportTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &TransportError{Reason: TransportTimeout, Err: err}
	case strings.Contains(err.Error(), "connection refused"):
		return &TransportError{Reason: TransportConnectionRefused, Err: err}
	}
	return &TransportError{Reason: TransportOther, Err: err}
}

// classifyRejection maps an HTTP status plus body to a RejectedError.
func classifyRejection(status int, body []byte) *RejectedError {
	msg := providerMessage(body)

	var cat RejectCategory
	switch {
	case status == 401 || status == 403 || status == 407:
		cat = RejectAuth
	case status >= 500:
		cat = RejectBackend
	case status == 400 || status == 413 || status == 415 || status == 422:
		cat = RejectPayload
	default:
		cat = RejectUnknown
	}

	return &RejectedError{StatusCode: status, Message: msg, Category: cat}
}

// providerMessage extracts a human-readable message from a provider error
// body, falling back to the (truncated) raw body.
func providerMessage(body []byte) string {
	var envelope struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Message) > 0 {
			var s string
			if json.Unmarshal(envelope.Message, &s) == nil && s != "" {
				return s
			}
			var list []string
			if json.Unmarshal(envelope.Message, &list) == nil && len(list) > 0 {
				return strings.Join(list, "; ")
			}
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}

	raw := strings.TrimSpace(string(body))
	if len(raw) > 200 {
		raw = raw[:200]
	}
	if raw == "" {
		raw = "no response body"
	}
	return raw
}
