package service

import (
	"context"
	"testing"
	"time"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSnapshotHarness(opts SnapshotOptions) (*SnapshotService, *fakeChannelStore, *time.Time) {
	chs := newFakeChannelStore()
	now := testTime
	svc := NewSnapshotService(zap.NewNop(), chs, opts)
	svc.now = func() time.Time { return now }
	return svc, chs, &now
}

func TestSnapshotCacheHit(t *testing.T) {
	svc, chs, _ := newSnapshotHarness(SnapshotOptions{})
	chs.rows[1] = &channel.Channel{ID: 1, TenantID: "acme", Name: "ops", Status: channel.StatusConnected, IsDefault: true}

	res, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	require.Len(t, res.Data, 1)
	assert.Equal(t, channel.StatusConnected, res.Data[0].Status)

	// a write after snapshot publication is invisible until expiry
	chs.rows[2] = &channel.Channel{ID: 2, TenantID: "acme", Name: "sales", Status: channel.StatusQR}

	res, err = svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Len(t, res.Data, 1)
}

func TestSnapshotExpiry(t *testing.T) {
	svc, chs, now := newSnapshotHarness(SnapshotOptions{TTL: 250 * time.Millisecond})
	chs.rows[1] = &channel.Channel{ID: 1, TenantID: "acme", Name: "ops", Status: channel.StatusQR}

	_, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)

	chs.rows[1].Status = channel.StatusConnected
	*now = now.Add(time.Second)

	res, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, channel.StatusConnected, res.Data[0].Status)
}

func TestSnapshotInvalidate(t *testing.T) {
	svc, chs, _ := newSnapshotHarness(SnapshotOptions{})
	chs.rows[1] = &channel.Channel{ID: 1, TenantID: "acme", Name: "ops", Status: channel.StatusQR}

	_, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)

	chs.rows[1].Status = channel.StatusConnected
	svc.Invalidate("acme")

	res, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, channel.StatusConnected, res.Data[0].Status)
}

func TestSnapshotTenantsAreIsolated(t *testing.T) {
	svc, chs, _ := newSnapshotHarness(SnapshotOptions{})
	chs.rows[1] = &channel.Channel{ID: 1, TenantID: "acme", Name: "ops"}
	chs.rows[2] = &channel.Channel{ID: 2, TenantID: "other", Name: "ops"}

	res, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, int64(1), res.Data[0].ID)
}

func TestSnapshotServesStaleOnError(t *testing.T) {
	svc, chs, now := newSnapshotHarness(SnapshotOptions{TTL: 250 * time.Millisecond, AllowStaleOnError: true})
	chs.rows[1] = &channel.Channel{ID: 1, TenantID: "acme", Name: "ops", Status: channel.StatusQR}

	_, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)

	*now = now.Add(time.Second)
	chs.failGetAll = true

	res, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err, "stale snapshot served on refresh failure")
	assert.True(t, res.CacheHit)
	require.Len(t, res.Data, 1)
}

func TestSnapshotPropagatesErrorWithoutStalePolicy(t *testing.T) {
	svc, chs, _ := newSnapshotHarness(SnapshotOptions{})
	chs.failGetAll = true

	_, err := svc.Get(context.Background(), "acme")
	assert.Error(t, err)
}
