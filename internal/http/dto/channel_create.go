package dto

import (
	"encoding/json"
	"errors"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/loopcrm/channels-server/internal/service"
)

// ChannelCreate is the DTO for provisioning a new messaging channel via
// POST /api/channels.
type ChannelCreate struct {
	TenantID       W[string]        `json:"tenant_id"`       // required; string
	Name           W[string]        `json:"name"`            // required; string
	ProviderKind   W[string]        `json:"provider_kind"`   // optional; string          (default: "gateway_self_hosted")
	PhoneNumber    W[string]        `json:"phone_number"`    // optional; string | null   (default: null)
	Routing        W[RoutingCreate] `json:"routing"`         // optional; object          (default: {})
	RecoveryWindow W[string]        `json:"recovery_window"` // optional; string          (default: "none")
	Metadata       json.RawMessage  `json:"metadata"`        // optional; object          (default: null)
}

type RoutingCreate struct {
	PipelineID  W[string] `json:"pipeline_id"`  // optional; string | null   (default: null)
	ColumnID    W[string] `json:"column_id"`    // optional; string | null   (default: null)
	DisplayName W[string] `json:"display_name"` // optional; string | null   (default: null)
	QueueID     W[string] `json:"queue_id"`     // optional; string | null   (default: null)
}

// ToRequest maps ChannelCreate → service.ProvisionRequest.
// Disallows explicit null assignment to non-nullable fields.
// Fills unset fields with defaults; the service validates values.
func (req *ChannelCreate) ToRequest() (service.ProvisionRequest, error) {
	out := service.ProvisionRequest{}

	// tenant_id
	// required; string
	if !req.TenantID.Set || req.TenantID.Null {
		return out, errors.New("tenant_id is required")
	}
	out.TenantID = req.TenantID.V

	// name
	// required; string
	if !req.Name.Set || req.Name.Null {
		return out, errors.New("name is required")
	}
	out.Name = req.Name.V

	// provider_kind
	// optional; string (default: "gateway_self_hosted")
	if req.ProviderKind.Set {
		if req.ProviderKind.Null {
			return out, errors.New("provider_kind cannot be null")
		}
		out.ProviderKind = provider.Kind(req.ProviderKind.V)
	} else {
		out.ProviderKind = provider.KindSelfHosted
	}

	// phone_number
	// optional; string | null (default: null)
	if req.PhoneNumber.Set && !req.PhoneNumber.Null {
		out.PhoneNumber = &req.PhoneNumber.V
	}

	// routing
	// optional; object (default: {})
	if req.Routing.Set {
		if req.Routing.Null {
			return out, errors.New("routing cannot be null")
		}
		out.Routing = req.Routing.V.toRouting()
	}

	// recovery_window
	// optional; string (default: "none")
	if req.RecoveryWindow.Set {
		if req.RecoveryWindow.Null {
			return out, errors.New("recovery_window cannot be null")
		}
		out.RecoveryWindow = channel.RecoveryWindow(req.RecoveryWindow.V)
	} else {
		out.RecoveryWindow = channel.RecoveryNone
	}

	// metadata
	// optional; object (default: null)
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		out.Metadata = req.Metadata
	}

	return out, nil
}

func (r RoutingCreate) toRouting() channel.Routing {
	out := channel.Routing{}
	if r.PipelineID.Set && !r.PipelineID.Null {
		out.PipelineID = &r.PipelineID.V
	}
	if r.ColumnID.Set && !r.ColumnID.Null {
		out.ColumnID = &r.ColumnID.V
	}
	if r.DisplayName.Set && !r.DisplayName.Null {
		out.DisplayName = &r.DisplayName.V
	}
	if r.QueueID.Set && !r.QueueID.Null {
		out.QueueID = &r.QueueID.V
	}
	return out
}
