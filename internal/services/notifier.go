package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// Notifier delivers a message to a user. Callers treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind models.NotificationType, title, message string, data map[string]interface{}) error
}

// Publisher pushes a serialized notification to a user's real-time channel
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, payload []byte) error
}

// NotificationService persists notifications and fans them out in real time
type NotificationService struct {
	store     NotificationStore
	publisher Publisher
	logger    *logrus.Logger
}

// NewNotificationService creates a notification service. publisher may be nil
// when no real-time transport is configured.
func NewNotificationService(store NotificationStore, publisher Publisher, logger *logrus.Logger) *NotificationService {
	return &NotificationService{store: store, publisher: publisher, logger: logger}
}

// Notify stores the notification, then publishes it. A publish failure is
// logged; the stored copy is still delivered on the next poll.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, kind models.NotificationType, title, message string, data map[string]interface{}) error {
	n := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		Data:      models.JSONMap(data),
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return err
	}

	if s.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := s.publisher.Publish(ctx, userID, payload); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"type":    kind,
			"error":   err.Error(),
		}).Warn("Failed to publish notification")
	}
	return nil
}

// List returns a user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	return s.store.ListByUser(ctx, userID, limit, offset)
}

// MarkRead marks one notification as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, userID, id)
}

// notice is one notification queued by an operation after it commits
type notice struct {
	userID  uuid.UUID
	kind    models.NotificationType
	title   string
	message string
	data    map[string]interface{}
}

// effectEmitter delivers post-commit notifications. Failures and panics in
// the transport are logged and never reach the caller.
type effectEmitter struct {
	notifier Notifier
	logger   *logrus.Logger
}

// emit sends notices about booking, tagging each with the booking number and status
func (e *effectEmitter) emit(ctx context.Context, booking *models.Booking, notices ...notice) {
	fields := logrus.Fields{"booking_id": booking.ID}
	for _, n := range notices {
		data := make(map[string]interface{}, len(n.data)+2)
		for k, v := range n.data {
			data[k] = v
		}
		data["booking_number"] = booking.BookingNumber
		data["status"] = string(booking.Status)
		n.data = data
		e.send(ctx, n, fields)
	}
}

// send delivers one notice. Notices without a recipient are dropped.
func (e *effectEmitter) send(ctx context.Context, n notice, fields ...logrus.Fields) {
	if n.userID == uuid.Nil {
		return
	}

	entry := e.logger.WithFields(logrus.Fields{
		"user_id": n.userID,
		"type":    n.kind,
	})
	for _, f := range fields {
		entry = entry.WithFields(f)
	}

	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", fmt.Sprint(r)).Error("Notification delivery panicked")
		}
	}()

	if err := e.notifier.Notify(ctx, n.userID, n.kind, n.title, n.message, n.data); err != nil {
		entry.WithError(err).Warn("Failed to deliver notification")
	}
}
