package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loopcrm/channels-server/internal/http/dto"
	"github.com/loopcrm/channels-server/internal/repo"
	"github.com/loopcrm/channels-server/internal/service"
	"go.uber.org/zap"
)

// WebhookHandler ingests provider connection-state callbacks.
//
// Route: POST /api/webhooks/{token}
//
// The token is the per-channel secret minted at provisioning time; it is the
// only authentication on this endpoint. Unknown tokens are answered 401
// without detail so the endpoint cannot be used to probe for channels.
type WebhookHandler struct {
	log       *zap.Logger
	secrets   service.SecretStore
	status    *service.StatusService
	snapshots *service.SnapshotService
}

func NewWebhookHandler(log *zap.Logger, secrets service.SecretStore, status *service.StatusService, snapshots *service.SnapshotService) *WebhookHandler {
	return &WebhookHandler{
		log:       log.Named("webhook"),
		secrets:   secrets,
		status:    status,
		snapshots: snapshots,
	}
}

// HandleEvent handles POST /api/webhooks/{token}.
//
// Status Codes:
//   - 200 OK → event applied
//   - 400 Bad Request → malformed payload
//   - 401 Unauthorized → unknown token
//   - 409 Conflict → event violates the lifecycle transition table
//   - 500 Internal Server Error
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	token := c.Param("token")

	channelID, err := h.secrets.ChannelIDByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, repo.ErrSecretNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}
		h.log.Error("webhook token lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "cannot read request body"})
		return
	}

	var req dto.WebhookEvent
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed JSON: " + err.Error()})
		return
	}

	ev, err := req.ToEvent(channelID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ch, err := h.status.Apply(c.Request.Context(), ev)
	if err != nil {
		var illegalErr *service.IllegalTransitionError
		switch {
		case errors.As(err, &illegalErr):
			// Late or duplicated deliveries are expected; surface the
			// rejection but keep it loggable on the sender side.
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": illegalErr.Error(),
				"details": gin.H{"from": illegalErr.From, "to": illegalErr.To}})
		case errors.Is(err, repo.ErrChannelNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "channel not found"})
		default:
			h.log.Error("webhook event apply failed", zap.Int64("channel_id", channelID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		}
		return
	}

	h.snapshots.Invalidate(ch.TenantID)
	c.JSON(http.StatusOK, gin.H{"success": true, "status": ch.Status})
}
