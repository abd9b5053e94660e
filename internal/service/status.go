package service

import (
	"context"
	"fmt"
	"time"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"go.uber.org/zap"
)

// StatusService applies asynchronous connection-state events (delivered by
// provider webhooks) against the lifecycle transition table.
type StatusService struct {
	log      *zap.Logger
	channels ChannelStore
	now      func() time.Time
}

func NewStatusService(log *zap.Logger, channels ChannelStore) *StatusService {
	return &StatusService{
		log:      log.Named("status_service"),
		channels: channels,
		now:      time.Now,
	}
}

// StatusEvent is one provider-side state change for a channel.
type StatusEvent struct {
	ChannelID   int64
	Status      channel.Status
	QRPayload   *string // fresh QR image/pairing payload, qr events only
	PhoneNumber *string // provider-confirmed number, connected events only
	HistoryDone bool    // history backfill finished
}

// Apply validates the transition and persists the new state. Events that
// violate the transition table are rejected with IllegalTransitionError and
// leave the row untouched; senders are expected to be out of date sometimes
// (webhooks can arrive late or duplicated), so rejection is a normal outcome.
func (s *StatusService) Apply(ctx context.Context, ev StatusEvent) (*channel.Channel, error) {
	ch, err := s.channels.GetByID(ctx, ev.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}

	if !ch.Status.CanTransition(ev.Status) {
		return nil, &IllegalTransitionError{ChannelID: ev.ChannelID, From: ch.Status, To: ev.Status}
	}

	prev := ch.Status
	ch.Status = ev.Status

	switch ev.Status {
	case channel.StatusQR:
		// Each qr event carries a fresh payload; qr→qr refreshes it.
		if ev.QRPayload != nil {
			ch.QRCode = ev.QRPayload
		}
	case channel.StatusConnected:
		// The pairing artifact is spent once the session is up.
		ch.QRCode = nil
		if ev.PhoneNumber != nil && *ev.PhoneNumber != "" {
			ch.PhoneNumber = ev.PhoneNumber
		}
	case channel.StatusDisconnected:
		ch.QRCode = nil
	}

	if ev.HistoryDone && ch.HistorySync.Window != channel.RecoveryNone {
		done := channel.SyncStatusDone
		doneAt := s.now()
		ch.HistorySync.Status = &done
		ch.HistorySync.DoneAt = &doneAt
	}

	ch.UpdatedAt = s.now()
	if err := s.channels.Upsert(ctx, ch); err != nil {
		return nil, fmt.Errorf("update channel: %w", err)
	}

	s.log.Info("channel status applied",
		zap.Int64("channel_id", ch.ID),
		zap.String("tenant_id", ch.TenantID),
		zap.String("from", string(prev)),
		zap.String("to", string(ch.Status)),
	)
	return ch, nil
}
