package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/repository"
	"medicare-scheduler/internal/utils"
)

// NotificationStore is the ledger behind the notification endpoints.
type NotificationStore interface {
	List(ctx context.Context, f repository.NotificationFilter) ([]models.Notification, error)
	ByID(ctx context.Context, id string) (*models.Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

// NotificationHandler exposes the notification ledger.
type NotificationHandler struct {
	ledger NotificationStore
	now    func() time.Time
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(ledger NotificationStore) *NotificationHandler {
	return &NotificationHandler{ledger: ledger, now: time.Now}
}

// GetNotifications lists notifications newest first. Non-admins only see
// their own; admins may filter by recipientId.
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	filter := repository.NotificationFilter{
		Type:   models.NotificationType(c.Query("type")),
		Status: models.NotificationStatus(c.Query("status")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		utils.BadRequest(c, "Invalid notification type")
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		utils.BadRequest(c, "Invalid notification status")
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			utils.BadRequest(c, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	if actor.Role == models.RoleAdmin {
		filter.RecipientID = c.Query("recipientId")
	} else {
		filter.RecipientID = actor.ID
	}

	notifications, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Notifications fetched successfully", notifications)
}

// MarkNotificationDelivered acknowledges a sent notification.
func (h *NotificationHandler) MarkNotificationDelivered(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	notification, err := h.ledger.ByID(ctx, id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if actor.Role != models.RoleAdmin && notification.RecipientID != actor.ID {
		utils.Forbidden(c, "You can only acknowledge your own notifications")
		return
	}

	if err := h.ledger.MarkDelivered(ctx, id, h.now()); err != nil {
		utils.RespondError(c, err)
		return
	}
	notification, err = h.ledger.ByID(ctx, id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Notification marked as delivered", notification)
}
