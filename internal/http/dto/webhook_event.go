package dto

import (
	"errors"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/service"
)

// WebhookEvent is the normalized connection-state callback posted to
// POST /api/webhooks/{token}. Gateway deployments run a thin relay that maps
// provider-native payloads onto this shape.
type WebhookEvent struct {
	Status      W[string] `json:"status"`       // required; "qr" | "connected" | "disconnected"
	QRCode      W[string] `json:"qr_code"`      // optional; fresh pairing payload on qr events
	PhoneNumber W[string] `json:"phone_number"` // optional; provider-confirmed number
	HistoryDone W[bool]   `json:"history_done"` // optional; history backfill finished
}

// ToEvent maps WebhookEvent → service.StatusEvent for the resolved channel.
func (req *WebhookEvent) ToEvent(channelID int64) (service.StatusEvent, error) {
	out := service.StatusEvent{ChannelID: channelID}

	if !req.Status.Set || req.Status.Null {
		return out, errors.New("status is required")
	}
	switch s := channel.Status(req.Status.V); s {
	case channel.StatusQR, channel.StatusConnected, channel.StatusDisconnected:
		out.Status = s
	default:
		return out, errors.New("status must be one of qr, connected, disconnected")
	}

	if req.QRCode.Set && !req.QRCode.Null {
		out.QRPayload = &req.QRCode.V
	}
	if req.PhoneNumber.Set && !req.PhoneNumber.Null {
		out.PhoneNumber = &req.PhoneNumber.V
	}
	if req.HistoryDone.Set && !req.HistoryDone.Null {
		out.HistoryDone = req.HistoryDone.V
	}

	return out, nil
}
