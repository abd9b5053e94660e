package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/loopcrm/channels-server/internal/gateway"
	"github.com/loopcrm/channels-server/internal/http/dto"
	"github.com/loopcrm/channels-server/internal/repo"
	"github.com/loopcrm/channels-server/internal/service"
	"github.com/loopcrm/channels-server/pkg/fmtt"
	"go.uber.org/zap"
)

// ChannelsHandler provides RESTful HTTP handlers for messaging channels.
//
// Supported operations:
//   - POST /api/channels                  → Provision a new channel
//   - GET  /api/channels?tenant_id=X      → List a tenant's channels
//   - GET  /api/channels/{id}             → Retrieve one channel
//   - GET  /api/channels/status?tenant_id → Poll-friendly status snapshot
//   - GET  /api/tenants/{tenant}/quota    → Connection quota view
type ChannelsHandler struct {
	log       *zap.Logger
	svc       *service.ProvisionService
	snapshots *service.SnapshotService
}

// NewChannelsHandler constructs a ChannelsHandler instance.
func NewChannelsHandler(log *zap.Logger, svc *service.ProvisionService, snapshots *service.SnapshotService) *ChannelsHandler {
	return &ChannelsHandler{
		log:       log.Named("channels"),
		svc:       svc,
		snapshots: snapshots,
	}
}

// CreateChannel handles POST /api/channels.
//
// Status Codes:
//   - 201 Created → {"success":true,"connection":{...}}
//   - 400 Bad Request → invalid input, unresolvable provider, quota, duplicate name
//   - 502 Bad Gateway → provider rejected or returned an unusable response
//   - 500 Internal Server Error → store or transport failure
func (h *ChannelsHandler) CreateChannel(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "cannot read request body"})
		return
	}

	var req dto.ChannelCreate
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed JSON: " + err.Error()})
		return
	}

	preq, err := req.ToRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ch, err := h.svc.Provision(c.Request.Context(), preq)
	if err != nil {
		h.writeProvisionError(c, err)
		return
	}

	h.snapshots.Invalidate(ch.TenantID)
	c.JSON(http.StatusCreated, gin.H{"success": true, "connection": ch})
}

// writeProvisionError maps provisioning errors onto the response contract.
// Caller mistakes are 400, provider-side rejections are 502, everything
// else (store failures, transport faults) is 500.
func (h *ChannelsHandler) writeProvisionError(c *gin.Context, err error) {
	if gin.IsDebugging() {
		fmtt.PrintErrChainDebug(err)
	}

	var (
		invalidErr    *service.InvalidRequestError
		quotaErr      *service.QuotaExceededError
		dupErr        *service.DuplicateNameError
		notConfErr    *provider.NotConfiguredError
		inactiveErr   *provider.InactiveError
		missingErr    *provider.MissingCredentialError
		rejectedErr   *gateway.RejectedError
		transportErr  *gateway.TransportError
		incompleteErr *gateway.IncompleteResponseError
	)

	switch {
	case errors.As(err, &invalidErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": invalidErr.Error()})

	case errors.As(err, &quotaErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": quotaErr.Error(),
			"details": gin.H{"limit": quotaErr.Limit, "used": quotaErr.Current}})

	case errors.As(err, &dupErr):
		details := gin.H{}
		if dupErr.ExistingID != 0 {
			details["existing_id"] = dupErr.ExistingID
			details["existing_status"] = dupErr.ExistingStatus
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": dupErr.Error(), "details": details})

	case errors.As(err, &notConfErr), errors.As(err, &inactiveErr), errors.As(err, &missingErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})

	case errors.As(err, &rejectedErr):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": rejectedErr.Error(),
			"details": gin.H{"category": rejectedErr.Category, "provider_status": rejectedErr.StatusCode}})

	case errors.As(err, &incompleteErr):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": incompleteErr.Error()})

	case errors.As(err, &transportErr):
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": transportErr.Error(),
			"details": gin.H{"reason": transportErr.Reason}})

	default:
		h.log.Error("channel provisioning failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}

// GetChannelList handles GET /api/channels?tenant_id=X.
//
// Behavior:
//   - Returns all channels of the tenant.
//   - Adds `X-Total-Count` header.
func (h *ChannelsHandler) GetChannelList(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "tenant_id query parameter is required"})
		return
	}

	chs, err := h.svc.ListChannels(c.Request.Context(), tenantID)
	if err != nil {
		h.log.Error("list channels failed", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(len(chs)))
	c.JSON(http.StatusOK, chs)
}

// GetChannel handles GET /api/channels/{id}.
func (h *ChannelsHandler) GetChannel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid channel id"})
		return
	}

	ch, err := h.svc.GetChannel(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrChannelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "channel not found"})
			return
		}
		h.log.Error("get channel failed", zap.Int64("channel_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, ch)
}

// GetStatusSnapshot handles GET /api/channels/status?tenant_id=X.
//
// Behavior:
//   - Serves the cached per-tenant snapshot (see service.SnapshotService).
//   - Adds `X-Cache` and `X-Snapshot-Generated-At` headers.
func (h *ChannelsHandler) GetStatusSnapshot(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "tenant_id query parameter is required"})
		return
	}

	res, err := h.snapshots.Get(c.Request.Context(), tenantID)
	if err != nil {
		h.log.Error("status snapshot failed", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	if res.CacheHit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Header("X-Snapshot-Generated-At", res.GeneratedAt.UTC().Format(time.RFC3339Nano))
	c.JSON(http.StatusOK, res.Data)
}

// GetQuota handles GET /api/tenants/{tenant}/quota.
func (h *ChannelsHandler) GetQuota(c *gin.Context) {
	tenantID := c.Param("tenant")

	view, err := h.svc.Quota(c.Request.Context(), tenantID)
	if err != nil {
		h.log.Error("quota view failed", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, view)
}
