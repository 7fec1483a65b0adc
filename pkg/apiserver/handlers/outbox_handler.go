package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/model"
)

type OutboxLister interface {
	List(ctx context.Context, status *model.OutboxStatus, limit, offset int) ([]model.OutboxMessage, int64, error)
}

// OutboxHandler lets operators inspect messages, typically the DEAD ones.
type OutboxHandler struct {
	messages OutboxLister
	logger   *zap.Logger
}

func NewOutboxHandler(messages OutboxLister, logger *zap.Logger) *OutboxHandler {
	return &OutboxHandler{messages: messages, logger: logger}
}

type outboxMessageResponse struct {
	ID        int64              `json:"id"`
	EventType string             `json:"eventType"`
	Payload   interface{}        `json:"payload"`
	Status    model.OutboxStatus `json:"status"`
	TryCount  int                `json:"tryCount"`
	NextTryAt *string            `json:"nextTryAt,omitempty"`
	LastError string             `json:"lastError,omitempty"`
	CreatedAt string             `json:"createdAt"`
	UpdatedAt string             `json:"updatedAt"`
}

func (h *OutboxHandler) List(c *gin.Context) {
	var status *model.OutboxStatus
	if statusValue := strings.TrimSpace(c.Query("status")); statusValue != "" {
		parsed := model.OutboxStatus(strings.ToUpper(statusValue))
		if !parsed.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = &parsed
	}

	limit := parseLimit(c.Query("limit"), 50)
	offset := parseOffset(c.Query("offset"))

	messages, total, err := h.messages.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list outbox messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list outbox messages"})
		return
	}

	response := make([]outboxMessageResponse, 0, len(messages))
	for i := range messages {
		response = append(response, mapOutboxMessage(&messages[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": response,
		"total":    total,
	})
}

func mapOutboxMessage(msg *model.OutboxMessage) outboxMessageResponse {
	return outboxMessageResponse{
		ID:        msg.ID,
		EventType: msg.EventType,
		Payload:   msg.Payload,
		Status:    msg.Status,
		TryCount:  msg.TryCount,
		NextTryAt: formatTime(msg.NextTryAt),
		LastError: msg.LastError,
		CreatedAt: msg.CreatedAt.UTC().Format(timeRFC3339Nano),
		UpdatedAt: msg.UpdatedAt.UTC().Format(timeRFC3339Nano),
	}
}
