package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/services"
	"github.com/CarMarket/pushsync/tokentable"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserNotifications(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		currentUserID  string
		isAdmin        bool
		expectedStatus int
	}{
		{name: "own notifications", userID: MockUserID, currentUserID: MockUserID, expectedStatus: http.StatusOK},
		{name: "admin for other user", userID: MockUserID, currentUserID: MockAdminID, isAdmin: true, expectedStatus: http.StatusOK},
		{name: "forbidden for other user", userID: MockAdminID, currentUserID: MockUserID, expectedStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, cleanup := SetupTestDB(t)
			defer cleanup()

			if tt.expectedStatus == http.StatusOK {
				mock.ExpectQuery(`SELECT .* FROM "notifications" WHERE .* ORDER BY "created_at" DESC`).
					WillReturnRows(notificationRows(MockNotification()))
			}

			c, w := SetupTestContext()
			SetAuthenticatedUser(c, tt.currentUserID, tt.isAdmin)
			c.Params = []gin.Param{{Key: "user_id", Value: tt.userID}}
			c.Request = httptest.NewRequest("GET", "/users/"+tt.userID+"/notifications", nil)

			GetUserNotifications(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var notifications []models.Notification
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &notifications))
				require.Len(t, notifications, 1)
				assert.Equal(t, "chat", notifications[0].Data["screen"])
				assert.False(t, notifications[0].IsRead)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetUnreadNotificationCount(t *testing.T) {
	_, mock, cleanup := SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "notifications"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	c, w := SetupTestContext()
	SetAuthenticatedUser(c, MockUserID, false)
	c.Params = []gin.Param{{Key: "user_id", Value: MockUserID}}
	c.Request = httptest.NewRequest("GET", "/users/"+MockUserID+"/notifications/unread-count", nil)

	GetUnreadNotificationCount(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(7), response["unreadCount"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationRead(t *testing.T) {
	tests := []struct {
		name           string
		affected       int64
		expectedStatus int
	}{
		{name: "marked", affected: 1, expectedStatus: http.StatusOK},
		{name: "not found", affected: 0, expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, cleanup := SetupTestDB(t)
			defer cleanup()

			mock.ExpectExec(`UPDATE "notifications" SET "is_read"=TRUE`).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			c, w := SetupTestContext()
			SetAuthenticatedUser(c, MockUserID, false)
			c.Params = []gin.Param{
				{Key: "user_id", Value: MockUserID},
				{Key: "notification_id", Value: "n-1"},
			}
			c.Request = httptest.NewRequest("PATCH", "/users/"+MockUserID+"/notifications/n-1/read", nil)

			MarkNotificationRead(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMarkAllNotificationsAsRead(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		currentUserID  string
		isAdmin        bool
		unreadCount    int64
		expectedStatus int
		expectError    bool
	}{
		{
			name:           "successful mark all as read - own notifications",
			userID:         MockUserID,
			currentUserID:  MockUserID,
			unreadCount:    5,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "successful mark all as read - admin for other user",
			userID:         MockUserID,
			currentUserID:  MockAdminID,
			isAdmin:        true,
			unreadCount:    3,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "no unread notifications",
			userID:         MockUserID,
			currentUserID:  MockUserID,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "forbidden - mark all for other user",
			userID:         MockAdminID,
			currentUserID:  MockUserID,
			expectedStatus: http.StatusForbidden,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, cleanup := SetupTestDB(t)
			defer cleanup()

			if !tt.expectError {
				mock.ExpectExec(`UPDATE "notifications"`).
					WillReturnResult(sqlmock.NewResult(0, tt.unreadCount))
			}

			c, w := SetupTestContext()
			SetAuthenticatedUser(c, tt.currentUserID, tt.isAdmin)
			c.Params = []gin.Param{{Key: "user_id", Value: tt.userID}}
			c.Request = httptest.NewRequest("PATCH", "/users/"+tt.userID+"/notifications/mark-all-read", nil)

			MarkAllNotificationsAsRead(c)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			_ = json.Unmarshal(w.Body.Bytes(), &response)

			if tt.expectError {
				assert.NotNil(t, response["error"])
			} else {
				assert.Equal(t, float64(tt.unreadCount), response["updatedCount"])
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSendPushNotification(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]interface{}
		withService    bool
		expectedStatus int
	}{
		{
			name:           "missing title",
			body:           map[string]interface{}{"userIds": []string{MockUserID}, "body": "hi"},
			withService:    true,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "service unavailable",
			body:           map[string]interface{}{"userIds": []string{MockUserID}, "title": "t", "body": "hi"},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "no deliverable devices",
			body:           map[string]interface{}{"userIds": []string{MockUserID}, "title": "t", "body": "hi"},
			withService:    true,
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, cleanup := SetupTestDB(t)
			defer cleanup()

			if tt.withService {
				services.SetPushNotificationService(services.NewPushNotificationService(nil, nil, tokentable.NewMemoryTable()))
			} else {
				services.SetPushNotificationService(nil)
			}
			defer services.SetPushNotificationService(nil)

			if tt.expectedStatus == http.StatusInternalServerError {
				mock.ExpectExec(`INSERT INTO "notifications"`).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(`SELECT pg_notify`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			}

			c, w := SetupTestContext()
			SetAuthenticatedUser(c, MockAdminID, true)
			jsonData, _ := json.Marshal(tt.body)
			c.Request = httptest.NewRequest("POST", "/notifications/send", bytes.NewBuffer(jsonData))
			c.Request.Header.Set("Content-Type", "application/json")

			SendPushNotification(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
