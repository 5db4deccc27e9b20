package controllers

import (
	"time"

	"github.com/CarMarket/pushsync/models"
	"github.com/DATA-DOG/go-sqlmock"
)

// Test fixture data for use in tests

const (
	MockUserID    = "6f1c2d9e-5b7a-4e3f-8a10-2c4d6e8f0a1b"
	MockAdminID   = "0b9e8d7c-6a5f-4e3d-2c1b-0a9f8e7d6c5b"
	MockPushToken = "ExponentPushToken[xXxMockDeviceTokenxXx]"
)

// MockPushTokenRow creates a signed-in, active push token row for MockUserID
func MockPushTokenRow() models.PushToken {
	return models.PushToken{
		ID:          "2a7e4c1d-9b3f-4d6a-8e2c-5f1a7b9d3c6e",
		UserID:      MockUserID,
		Token:       MockPushToken,
		DeviceType:  models.DeviceTypeIOS,
		SignedIn:    true,
		Active:      true,
		LastUpdated: time.Now(),
	}
}

// MockNotification creates an unread notification for MockUserID
func MockNotification() models.Notification {
	return models.Notification{
		ID:        "9d8c7b6a-5f4e-4d3c-2b1a-0f9e8d7c6b5a",
		UserID:    MockUserID,
		Type:      models.NotificationTypeNewMessage,
		Title:     "Dealer",
		Message:   "Is the car still available?",
		Data:      models.NotificationData{"screen": "chat", "conversationId": "conv-1"},
		CreatedAt: time.Now(),
	}
}

func pushTokenRows(rows ...models.PushToken) *sqlmock.Rows {
	out := sqlmock.NewRows([]string{"id", "user_id", "token", "device_type", "signed_in", "active", "last_updated"})
	for _, r := range rows {
		out.AddRow(r.ID, r.UserID, r.Token, r.DeviceType, r.SignedIn, r.Active, r.LastUpdated)
	}
	return out
}

func notificationRows(rows ...models.Notification) *sqlmock.Rows {
	out := sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "data", "is_read", "created_at"})
	for _, r := range rows {
		data, _ := r.Data.Value()
		out.AddRow(r.ID, r.UserID, r.Type, r.Title, r.Message, data, r.IsRead, r.CreatedAt)
	}
	return out
}
