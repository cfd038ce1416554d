package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies the event a notification describes
type NotificationType string

const (
	NotificationBookingCreated   NotificationType = "BOOKING_CREATED"
	NotificationNewJob           NotificationType = "NEW_JOB"
	NotificationPartnerAssigned  NotificationType = "PARTNER_ASSIGNED"
	NotificationBookingAccepted  NotificationType = "BOOKING_ACCEPTED"
	NotificationBookingRejected  NotificationType = "BOOKING_REJECTED"
	NotificationPartnerArrived   NotificationType = "PARTNER_ARRIVED"
	NotificationServiceStarted   NotificationType = "SERVICE_STARTED"
	NotificationServiceCompleted NotificationType = "SERVICE_COMPLETED"
	NotificationBookingCancelled NotificationType = "BOOKING_CANCELLED"
	NotificationPartnerNotFound  NotificationType = "PARTNER_NOT_FOUND"
	NotificationBookingRated     NotificationType = "BOOKING_RATED"
	NotificationPaymentReceived  NotificationType = "PAYMENT_RECEIVED"
	NotificationWithdrawal       NotificationType = "WITHDRAWAL_UPDATE"
)

// Notification is a persisted in-app message for a user
type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Data      JSONMap          `json:"data,omitempty" db:"data"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
