package telephony

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"crm-telephony/internal/calls"
	"crm-telephony/internal/reconcile"
	"crm-telephony/pkg/logger"
	"crm-telephony/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// WebhookHandlers receives carrier callbacks and feeds them to the
// reconcile coordinator.
//
// Response policy: events that can never succeed on redelivery (malformed,
// unknown call, stale, duplicate recording) are acknowledged with 200 so the
// carrier stops retrying; each is still logged with a reason. Only a store
// outage returns 503, leaving the delivery unacknowledged so the carrier's
// own retry redelivers it.
//
// No business logic here; lifecycle decisions live in internal/calls and
// internal/reconcile.

const maxWebhookBody = 64 << 10

type WebhookHandlers struct {
	Coordinator *reconcile.Coordinator

	// Redis backs duplicate-delivery detection. Optional: when nil (or on
	// Redis errors) deliveries pass through; the coordinator's staleness and
	// idempotency checks remain the correctness mechanism.
	Redis     *redis.Client
	DedupeTTL time.Duration
}

func (h WebhookHandlers) HandleStatusEvent(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, err := ParseStatusEvent(body)
	if err != nil {
		log.Warn("status webhook rejected", "reason", "malformed", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	key := fmt.Sprintf("webhook:status:%s:%s:%d", ev.ProviderCallID, ev.Status, ev.Timestamp.UnixMilli())
	if h.seenBefore(c, key) {
		log.Info("status webhook deduplicated", "provider_call_id", ev.ProviderCallID, "event_status", ev.Status)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	call, err := h.Coordinator.ApplyStatusEvent(c.Request.Context(), ev)
	switch {
	case err == nil:
		log.Info("status event applied", "call_id", call.CallID, "status", call.Status)
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	case errors.Is(err, calls.ErrNotFound):
		log.Warn("status webhook rejected", "reason", "unknown call", "provider_call_id", ev.ProviderCallID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.Is(err, calls.ErrStaleEvent):
		log.Info("status webhook superseded", "provider_call_id", ev.ProviderCallID, "event_status", ev.Status, "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "stale"})
	case errors.Is(err, reconcile.ErrPersistenceFailure):
		// Unacknowledged on purpose: the carrier will redeliver. The marker
		// is cleared so the redelivery is not mistaken for a duplicate.
		h.clearMarker(c, key)
		log.Error("status event not persisted", "provider_call_id", ev.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try later"})
	default:
		// Also unacknowledged; the marker must not outlive a failed delivery.
		h.clearMarker(c, key)
		log.Error("status event failed", "provider_call_id", ev.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func (h WebhookHandlers) HandleRecordingEvent(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, err := ParseRecordingEvent(body)
	if err != nil {
		log.Warn("recording webhook rejected", "reason", "malformed", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	key := fmt.Sprintf("webhook:recording:%s", ev.ProviderConversationID)
	if h.seenBefore(c, key) {
		log.Info("recording webhook deduplicated", "provider_conversation_id", ev.ProviderConversationID)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	call, err := h.Coordinator.ApplyRecordingEvent(c.Request.Context(), ev)
	switch {
	case err == nil:
		log.Info("recording attached", "call_id", call.CallID)
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	case errors.Is(err, calls.ErrNotFound):
		log.Warn("recording webhook rejected", "reason", "unknown conversation", "provider_conversation_id", ev.ProviderConversationID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.Is(err, calls.ErrDuplicateRecording):
		log.Info("recording webhook duplicate", "provider_conversation_id", ev.ProviderConversationID)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	case errors.Is(err, reconcile.ErrPersistenceFailure):
		h.clearMarker(c, key)
		log.Error("recording event not persisted", "provider_conversation_id", ev.ProviderConversationID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try later"})
	default:
		h.clearMarker(c, key)
		log.Error("recording event failed", "provider_conversation_id", ev.ProviderConversationID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

// seenBefore consults the Redis delivery marker. Dedupe is best-effort: on a
// Redis error the event proceeds and the coordinator's own checks decide.
func (h WebhookHandlers) seenBefore(c *gin.Context, key string) bool {
	if h.Redis == nil {
		return false
	}
	ttl := h.DedupeTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	first, err := utils.MarkDelivery(c.Request.Context(), h.Redis, key, ttl)
	if err != nil {
		logger.FromGin(c).Warn("delivery dedupe unavailable", "err", err)
		return false
	}
	return !first
}

func (h WebhookHandlers) clearMarker(c *gin.Context, key string) {
	if h.Redis == nil {
		return
	}
	if err := h.Redis.Del(c.Request.Context(), key).Err(); err != nil {
		logger.FromGin(c).Warn("delivery marker clear failed", "key", key, "err", err)
	}
}
