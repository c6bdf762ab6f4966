// internal/services/notification_service.go
package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/events"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

// NotificationService persists notifications and fans them out to live
// event-stream subscribers. Persistence is authoritative; stream delivery is
// best-effort and never fails the calling flow.
type NotificationService struct {
	db     *gorm.DB
	broker *events.StreamBroker
}

func NewNotificationService(db *gorm.DB, broker *events.StreamBroker) *NotificationService {
	return &NotificationService{db: db, broker: broker}
}

// Notify writes the row and publishes the event. A failed insert is logged
// and swallowed: an ownership transfer must never roll back because a
// notification could not be written.
func (s *NotificationService) Notify(tx *gorm.DB, userID uuid.UUID, title, message string, productID *uuid.UUID, txHash string) {
	if tx == nil {
		tx = s.db
	}

	notification := &models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		ProductID: productID,
		TxHash:    txHash,
	}
	if err := tx.Create(notification).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to persist notification")
		return
	}

	if s.broker != nil {
		s.broker.Publish(events.OwnershipEvent{
			UserID:    userID,
			Title:     title,
			Message:   message,
			ProductID: productID,
			TxHash:    txHash,
		})
	}
}

// ListForUser returns the user's notifications, newest first.
func (s *NotificationService) ListForUser(userID uuid.UUID, params utils.PaginationParams) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	query := s.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := utils.ApplyPagination(query.Order("created_at DESC"), params).
		Find(&notifications).Error
	return notifications, total, err
}

// MarkRead stamps read_at; repeated calls keep the first timestamp.
func (s *NotificationService) MarkRead(userID, notificationID uuid.UUID) error {
	var notification models.Notification
	err := s.db.First(&notification, "id = ?", notificationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("notification")
	}
	if err != nil {
		return err
	}
	if notification.UserID != userID {
		return apperrors.PermissionDenied("notification belongs to another user")
	}
	if notification.ReadAt != nil {
		return nil
	}

	now := time.Now().UTC()
	return s.db.Model(&notification).Update("read_at", now).Error
}

// UnreadCount reports how many notifications the user has not read yet.
func (s *NotificationService) UnreadCount(userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}
