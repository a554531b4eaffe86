package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crm-telephony/internal/auth"
	"crm-telephony/internal/calls"
	"crm-telephony/internal/carrier"
	"crm-telephony/internal/control"
	"crm-telephony/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   *calls.Service
	Control *control.Gateway
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: credential validation belongs to the CRM's user module; this service
// only mints tokens for callers that module has already vetted.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type startCallRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Record bool   `json:"record"`
}

func (h Handlers) StartCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls service not configured"})
		return
	}
	requester, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.From == "" || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from, to required"})
		return
	}

	call, err := h.Calls.Start(c.Request.Context(), requester, calls.StartRequest{
		From:   req.From,
		To:     req.To,
		Record: req.Record,
	})
	if err != nil {
		logger.FromGin(c).Error("call start failed", "err", err)
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls service not configured"})
		return
	}
	requester, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	call, err := h.Calls.Get(c.Request.Context(), requester, callID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// --- Control ---

func (h Handlers) MuteCall(c *gin.Context) {
	h.controlAction(c, "mute", func(ctx context.Context, callID string, requester auth.Identity) error {
		return h.Control.Mute(ctx, callID, requester)
	})
}

func (h Handlers) UnmuteCall(c *gin.Context) {
	h.controlAction(c, "unmute", func(ctx context.Context, callID string, requester auth.Identity) error {
		return h.Control.Unmute(ctx, callID, requester)
	})
}

func (h Handlers) HangupCall(c *gin.Context) {
	h.controlAction(c, "hangup", func(ctx context.Context, callID string, requester auth.Identity) error {
		return h.Control.Hangup(ctx, callID, requester)
	})
}

func (h Handlers) controlAction(c *gin.Context, name string, fn func(context.Context, string, auth.Identity) error) {
	if h.Control == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "control gateway not configured"})
		return
	}
	requester, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	if err := fn(c.Request.Context(), callID, requester); err != nil {
		logger.FromGin(c).Warn("control command rejected", "action", name, "call_id", callID, "err", err)
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, calls.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, control.ErrNoActiveSession):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call has no carrier session"})
	case errors.Is(err, control.ErrControlFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "carrier rejected command"})
	case errors.Is(err, carrier.ErrTransport):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call could not be started"})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
