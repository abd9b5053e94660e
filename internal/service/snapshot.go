package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"go.uber.org/zap"
)

type SnapshotOptions struct {
	// TTL controls how long we serve the in-memory snapshot.
	// 150–400ms works well for 1.5s polling; default 250ms.
	TTL time.Duration
	// RefreshTimeout bounds store work for a single refresh.
	// Keep this ≤ your handler budget; default 300ms.
	RefreshTimeout time.Duration
	// Allow serving stale on refresh error (graceful degrade).
	AllowStaleOnError bool
}

func (o *SnapshotOptions) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 250 * time.Millisecond
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = 300 * time.Millisecond
	}
}

// StatusSnapshot is the poll-friendly projection of one channel: enough for
// a connections dashboard to render state without the full row.
type StatusSnapshot struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Status      channel.Status `json:"status"`
	IsDefault   bool           `json:"is_default"`
	PhoneNumber *string        `json:"phone_number,omitempty"`
	QRCode      *string        `json:"qr_code,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SnapshotResult lets the handler set headers/telemetry.
type SnapshotResult struct {
	Data        []StatusSnapshot
	CacheHit    bool
	GeneratedAt time.Time // snapshot timestamp
}

type tenantSnapshot struct {
	data    []StatusSnapshot
	expires time.Time
	genAt   time.Time
}

// SnapshotService serves per-tenant status snapshots for UI polling.
// Connection state changes land via webhooks at provider pace; clients poll
// much faster, so reads are absorbed by a short-TTL in-memory cache with
// coalesced refreshes.
type SnapshotService struct {
	log      *zap.Logger
	channels ChannelStore

	mu    sync.RWMutex
	cache map[string]tenantSnapshot // by tenant ID

	opts SnapshotOptions
	now  func() time.Time

	sg singleflight.Group
}

// NewSnapshotService wires the channel store and cache policy.
// Reuse a single instance per process (handlers call Get()).
func NewSnapshotService(log *zap.Logger, channels ChannelStore, opts SnapshotOptions) *SnapshotService {
	opts.setDefaults()

	return &SnapshotService{
		log:      log.Named("snapshot_service"),
		channels: channels,
		cache:    make(map[string]tenantSnapshot),
		opts:     opts,
		now:      time.Now,
	}
}

// Get returns the tenant's cached snapshot or refreshes it when expired.
// Multiple concurrent refreshes for the same tenant are coalesced.
func (s *SnapshotService) Get(ctx context.Context, tenantID string) (SnapshotResult, error) {
	// Fast path: fresh cache
	s.mu.RLock()
	if snap, ok := s.cache[tenantID]; ok && s.now().Before(snap.expires) {
		out := cloneSnapshots(snap.data)
		genAt := snap.genAt
		s.mu.RUnlock()
		return SnapshotResult{Data: out, CacheHit: true, GeneratedAt: genAt}, nil
	}
	s.mu.RUnlock()

	// Slow path: singleflight refresh
	v, err, _ := s.sg.Do("snapshot:"+tenantID, func() (any, error) {
		// Double-check freshness after we won the flight
		s.mu.RLock()
		if snap, ok := s.cache[tenantID]; ok && s.now().Before(snap.expires) {
			out := cloneSnapshots(snap.data)
			genAt := snap.genAt
			s.mu.RUnlock()
			return SnapshotResult{Data: out, CacheHit: true, GeneratedAt: genAt}, nil
		}
		s.mu.RUnlock()

		ctx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
		defer cancel()

		start := s.now()
		data, err := s.refresh(ctx, tenantID)
		if err != nil {
			// Refresh failed: optionally serve stale, else propagate error
			if s.opts.AllowStaleOnError {
				s.mu.RLock()
				if snap, ok := s.cache[tenantID]; ok {
					out := cloneSnapshots(snap.data)
					genAt := snap.genAt
					s.mu.RUnlock()
					s.log.Warn("snapshot refresh failed; serving stale",
						zap.String("tenant_id", tenantID), zap.Error(err))
					return SnapshotResult{Data: out, CacheHit: true, GeneratedAt: genAt}, nil
				}
				s.mu.RUnlock()
			}
			return nil, err
		}

		// Publish new snapshot
		s.mu.Lock()
		s.cache[tenantID] = tenantSnapshot{
			data:    data,
			expires: s.now().Add(s.opts.TTL),
			genAt:   start,
		}
		s.mu.Unlock()

		return SnapshotResult{Data: cloneSnapshots(data), CacheHit: false, GeneratedAt: start}, nil
	})
	if err != nil {
		return SnapshotResult{}, err
	}
	return v.(SnapshotResult), nil
}

// Invalidate drops a tenant's snapshot after a write so the next poll sees
// the change immediately.
func (s *SnapshotService) Invalidate(tenantID string) {
	s.mu.Lock()
	delete(s.cache, tenantID)
	s.mu.Unlock()
}

func (s *SnapshotService) refresh(ctx context.Context, tenantID string) ([]StatusSnapshot, error) {
	chs, err := s.channels.GetAllForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]StatusSnapshot, 0, len(chs))
	for _, ch := range chs {
		out = append(out, StatusSnapshot{
			ID:          ch.ID,
			Name:        ch.Name,
			Status:      ch.Status,
			IsDefault:   ch.IsDefault,
			PhoneNumber: ch.PhoneNumber,
			QRCode:      ch.QRCode,
			UpdatedAt:   ch.UpdatedAt,
		})
	}
	return out, nil
}

func cloneSnapshots(in []StatusSnapshot) []StatusSnapshot {
	if len(in) == 0 {
		return nil
	}
	out := make([]StatusSnapshot, len(in))
	copy(out, in)
	return out
}
