package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// NotificationFilter narrows a ledger listing. Empty fields match everything.
type NotificationFilter struct {
	RecipientID string
	Type        models.NotificationType
	Status      models.NotificationStatus
	Limit       int
}

// NotificationRepo is the notification ledger.
type NotificationRepo struct{ db *gorm.DB }

func NewNotificationRepo(db *gorm.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Create stores n as pending.
func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if !n.Metadata.Matches(n.Type) {
		return apperr.Validation("metadata does not match notification type %s", n.Type)
	}
	n.Status = models.NotificationPending
	if n.MaxRetries == 0 {
		n.MaxRetries = models.DefaultMaxRetries
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return apperr.Store(err, "create notification")
	}
	return nil
}

// ByID returns a single notification.
func (r *NotificationRepo) ByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("notification %s not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "load notification")
	}
	return &n, nil
}

// transition applies updates only when the record is in from. A miss is
// reported as not found or as an invalid transition.
func (r *NotificationRepo) transition(ctx context.Context, id string, from, to models.NotificationStatus, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return apperr.Store(res.Error, "update notification")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	n, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	return apperr.Validation("notification %s is %s and cannot become %s", id, n.Status, to)
}

// MarkSent moves a pending notification to sent.
func (r *NotificationRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, models.NotificationPending, models.NotificationSent, map[string]interface{}{
		"status":        models.NotificationSent,
		"sent_at":       at.UTC(),
		"error_message": "",
	})
}

// RecordFailure counts a failed attempt on a pending notification. When final
// is set the record moves to failed, otherwise it stays pending for a retry.
func (r *NotificationRepo) RecordFailure(ctx context.Context, id, reason string, final bool) error {
	updates := map[string]interface{}{
		"retry_count":   gorm.Expr("retry_count + ?", 1),
		"error_message": reason,
	}
	to := models.NotificationPending
	if final {
		to = models.NotificationFailed
		updates["status"] = models.NotificationFailed
	}
	return r.transition(ctx, id, models.NotificationPending, to, updates)
}

// MarkDelivered moves a sent notification to delivered.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, models.NotificationSent, models.NotificationDelivered, map[string]interface{}{
		"status":       models.NotificationDelivered,
		"delivered_at": at.UTC(),
	})
}

// List returns notifications newest first.
func (r *NotificationRepo) List(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := r.db.WithContext(ctx).Model(&models.Notification{})
	if f.RecipientID != "" {
		q = q.Where("recipient_id = ?", f.RecipientID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var out []models.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, apperr.Store(err, "list notifications")
	}
	return out, nil
}

// DeleteOlderThan removes notifications created before cutoff, whatever their status.
func (r *NotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.Notification{})
	if res.Error != nil {
		return 0, apperr.Store(res.Error, "delete old notifications")
	}
	return res.RowsAffected, nil
}
