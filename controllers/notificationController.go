package controllers

import (
	"errors"
	"net/http"

	"github.com/CarMarket/pushsync/initializers"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/services"
	"github.com/CarMarket/pushsync/tokentable"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// authorizedUser returns the :user_id path parameter when the caller may act
// on it, writing the error response otherwise.
func authorizedUser(c *gin.Context, action string) (string, bool) {
	currentUserID := c.MustGet("currentUserID").(string)
	isAdmin := c.MustGet("admin").(bool)

	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return "", false
	}

	if userID != currentUserID && !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to " + action + " this user's notifications"})
		return "", false
	}
	return userID, true
}

func GetUserNotifications(c *gin.Context) {
	userID, ok := authorizedUser(c, "view")
	if !ok {
		return
	}

	notifications, err := tokentable.NewPostgresNotifications(initializers.DB).List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	c.JSON(http.StatusOK, notifications)
}

func GetUnreadNotificationCount(c *gin.Context) {
	userID, ok := authorizedUser(c, "view")
	if !ok {
		return
	}

	count, err := tokentable.NewPostgresNotifications(initializers.DB).UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

func MarkNotificationRead(c *gin.Context) {
	userID, ok := authorizedUser(c, "modify")
	if !ok {
		return
	}

	notificationID := c.Param("notification_id")
	err := tokentable.NewPostgresNotifications(initializers.DB).MarkRead(c.Request.Context(), userID, notificationID)
	if errors.Is(err, tokentable.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func MarkAllNotificationsAsRead(c *gin.Context) {
	userID, ok := authorizedUser(c, "modify")
	if !ok {
		return
	}

	rowsAffected, err := tokentable.NewPostgresNotifications(initializers.DB).MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notifications as read", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "All notifications marked as read",
		"updatedCount": rowsAffected,
	})
}

type SendNotificationRequest struct {
	UserIDs  []string          `json:"userIds" binding:"required,min=1"`
	Title    string            `json:"title" binding:"required"`
	Body     string            `json:"body" binding:"required"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    string            `json:"badge,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

// SendPushNotification stores a GENERAL notification for every recipient,
// publishing each to realtime subscribers, and pushes it to their devices.
func SendPushNotification(c *gin.Context) {
	var request SendNotificationRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pushService := services.GetPushNotificationService()
	if pushService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notification service not available"})
		return
	}

	ctx := c.Request.Context()
	notifications := tokentable.NewPostgresNotifications(initializers.DB)

	var failed []string
	for _, userID := range request.UserIDs {
		created, err := notifications.Create(ctx, models.Notification{
			UserID:  userID,
			Type:    models.NotificationTypeGeneral,
			Title:   request.Title,
			Message: request.Body,
			Data:    request.Data,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification", "details": err.Error()})
			return
		}

		data := map[string]string{"notificationId": created.ID, "type": created.Type}
		for k, v := range request.Data {
			data[k] = v
		}

		err = pushService.SendNotificationToUser(ctx, userID, services.NotificationPayload{
			Title:    request.Title,
			Body:     request.Body,
			Data:     data,
			Sound:    request.Sound,
			Badge:    request.Badge,
			Priority: request.Priority,
		})
		if err != nil {
			zap.S().Warnw("failed to push notification", "userId", userID, "error", err)
			failed = append(failed, userID)
		}
	}

	if len(failed) == len(request.UserIDs) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send push notifications", "userIds": failed})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Push notifications sent successfully",
		"userIds": request.UserIDs,
		"failed":  failed,
	})
}
