package service

import (
	"context"
	"testing"
	"time"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStatusHarness(ch *channel.Channel) (*StatusService, *fakeChannelStore) {
	chs := newFakeChannelStore()
	if ch != nil {
		chs.rows[ch.ID] = ch
	}
	svc := &StatusService{
		log:      zap.NewNop(),
		channels: chs,
		now:      func() time.Time { return testTime },
	}
	return svc, chs
}

func TestStatusApplyQRToConnected(t *testing.T) {
	qr := "2@OLD"
	svc, chs := newStatusHarness(&channel.Channel{
		ID: 1, TenantID: "acme", Status: channel.StatusQR, QRCode: &qr,
	})

	phone := "5511999990000"
	ch, err := svc.Apply(context.Background(), StatusEvent{
		ChannelID: 1, Status: channel.StatusConnected, PhoneNumber: &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, channel.StatusConnected, ch.Status)
	assert.Nil(t, ch.QRCode, "pairing artifact is spent on connect")
	require.NotNil(t, ch.PhoneNumber)
	assert.Equal(t, phone, *ch.PhoneNumber)

	stored, err := chs.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, channel.StatusConnected, stored.Status)
}

func TestStatusApplyQRRefresh(t *testing.T) {
	old := "2@OLD"
	svc, _ := newStatusHarness(&channel.Channel{
		ID: 1, TenantID: "acme", Status: channel.StatusQR, QRCode: &old,
	})

	fresh := "2@FRESH"
	ch, err := svc.Apply(context.Background(), StatusEvent{
		ChannelID: 1, Status: channel.StatusQR, QRPayload: &fresh,
	})
	require.NoError(t, err)
	require.NotNil(t, ch.QRCode)
	assert.Equal(t, fresh, *ch.QRCode)
}

func TestStatusApplyIllegalTransition(t *testing.T) {
	svc, chs := newStatusHarness(&channel.Channel{
		ID: 1, TenantID: "acme", Status: channel.StatusConnected,
	})

	qr := "2@QR"
	_, err := svc.Apply(context.Background(), StatusEvent{
		ChannelID: 1, Status: channel.StatusQR, QRPayload: &qr,
	})
	var illErr *IllegalTransitionError
	require.ErrorAs(t, err, &illErr)
	assert.Equal(t, channel.StatusConnected, illErr.From)
	assert.Equal(t, channel.StatusQR, illErr.To)

	// row untouched
	stored, getErr := chs.GetByID(context.Background(), 1)
	require.NoError(t, getErr)
	assert.Equal(t, channel.StatusConnected, stored.Status)
}

func TestStatusApplyDisconnectReconnect(t *testing.T) {
	svc, _ := newStatusHarness(&channel.Channel{
		ID: 1, TenantID: "acme", Status: channel.StatusConnected,
	})

	ch, err := svc.Apply(context.Background(), StatusEvent{ChannelID: 1, Status: channel.StatusDisconnected})
	require.NoError(t, err)
	assert.Equal(t, channel.StatusDisconnected, ch.Status)

	ch, err = svc.Apply(context.Background(), StatusEvent{ChannelID: 1, Status: channel.StatusConnected})
	require.NoError(t, err)
	assert.Equal(t, channel.StatusConnected, ch.Status)
}

func TestStatusApplyHistoryDone(t *testing.T) {
	syncing := channel.SyncStatusSyncing
	started := testTime.Add(-time.Hour)
	svc, _ := newStatusHarness(&channel.Channel{
		ID: 1, TenantID: "acme", Status: channel.StatusQR,
		HistorySync: channel.HistorySync{
			Window: channel.RecoveryWeek, Days: 7,
			Status: &syncing, StartedAt: &started,
		},
	})

	ch, err := svc.Apply(context.Background(), StatusEvent{
		ChannelID: 1, Status: channel.StatusConnected, HistoryDone: true,
	})
	require.NoError(t, err)
	require.NotNil(t, ch.HistorySync.Status)
	assert.Equal(t, channel.SyncStatusDone, *ch.HistorySync.Status)
	require.NotNil(t, ch.HistorySync.DoneAt)
	assert.Equal(t, testTime, *ch.HistorySync.DoneAt)
}

func TestStatusApplyHistoryDoneIgnoredWithoutWindow(t *testing.T) {
	svc, _ := newStatusHarness(&channel.Channel{
		ID: 1, TenantID: "acme", Status: channel.StatusQR,
		HistorySync: channel.HistorySync{Window: channel.RecoveryNone},
	})

	ch, err := svc.Apply(context.Background(), StatusEvent{
		ChannelID: 1, Status: channel.StatusConnected, HistoryDone: true,
	})
	require.NoError(t, err)
	assert.Nil(t, ch.HistorySync.Status)
	assert.Nil(t, ch.HistorySync.DoneAt)
}

func TestStatusApplyUnknownChannel(t *testing.T) {
	svc, _ := newStatusHarness(nil)

	_, err := svc.Apply(context.Background(), StatusEvent{ChannelID: 42, Status: channel.StatusConnected})
	assert.ErrorIs(t, err, repo.ErrChannelNotFound)
}
