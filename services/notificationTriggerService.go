package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/CarMarket/pushsync/initializers"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/tokentable"
	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

// Debounce windows per trigger, in minutes.
const (
	chatDebounceMinutes      = 2
	favoriteDebounceMinutes  = 60
	milestoneDebounceMinutes = 24 * 60
)

// ViewsMilestones are the listing view counts that notify the owner.
var ViewsMilestones = []int{100, 500, 1000, 5000, 10000}

// IsViewsMilestone reports whether views is exactly one of ViewsMilestones.
func IsViewsMilestone(views int) bool {
	for _, m := range ViewsMilestones {
		if views == m {
			return true
		}
	}
	return false
}

// shouldSendDebounced reports whether a notification for (type, user,
// entity) is outside its debounce window, claiming the window if so. The
// upsert only touches the row when the previous trigger is older than the
// window, so concurrent triggers cannot both win. Rows older than a day are
// removed lazily.
func shouldSendDebounced(ctx context.Context, notifType, targetUserID, entityID string, windowMinutes int) bool {
	_, cleanupErr := initializers.DB.Delete("notification_debounce").
		Where(goqu.L("last_triggered_at < NOW() - INTERVAL '24 hours'")).
		Executor().ExecContext(ctx)
	if cleanupErr != nil {
		zap.S().Warnw("failed to clean up debounce records", "error", cleanupErr)
	}

	query := `
		INSERT INTO notification_debounce (notification_type, target_user_id, entity_id, last_triggered_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (notification_type, target_user_id, entity_id)
		DO UPDATE SET last_triggered_at = NOW()
		WHERE notification_debounce.last_triggered_at < NOW() - ($4 || ' minutes')::INTERVAL
		RETURNING debounce_id
	`

	var debounceID int64
	err := initializers.DB.QueryRowContext(ctx, query, notifType, targetUserID, entityID, windowMinutes).Scan(&debounceID)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		// fail open: a duplicate beats a lost notification
		zap.S().Errorw("debounce check failed", "type", notifType, "userId", targetUserID, "error", err)
	}
	return true
}

// notify stores the notification row, publishing it to realtime
// subscribers, then pushes it to the user's devices.
func notify(ctx context.Context, n models.Notification, payload NotificationPayload) {
	created, err := tokentable.NewPostgresNotifications(initializers.DB).Create(ctx, n)
	if err != nil {
		zap.S().Errorw("failed to create notification", "type", n.Type, "userId", n.UserID, "error", err)
		return
	}

	pushService := GetPushNotificationService()
	if pushService == nil {
		zap.S().Warnw("push notification service not available")
		return
	}

	if payload.Data == nil {
		payload.Data = map[string]string{}
	}
	payload.Data["notificationId"] = created.ID
	payload.Data["type"] = n.Type

	if err := pushService.SendNotificationToUser(ctx, n.UserID, payload); err != nil {
		zap.S().Warnw("failed to send push notification", "type", n.Type, "userId", n.UserID, "error", err)
	}
}

// NotifyNewChatMessage tells the recipient of a dealership chat message.
// Bursts within a conversation collapse to one notification.
func NotifyNewChatMessage(ctx context.Context, recipientID, senderID, senderName, conversationID, preview string) {
	if recipientID == senderID {
		return
	}
	if !shouldSendDebounced(ctx, models.NotificationTypeNewMessage, recipientID, conversationID, chatDebounceMinutes) {
		zap.S().Debugw("debounced chat notification", "userId", recipientID, "conversationId", conversationID)
		return
	}

	message := preview
	if len(message) > 120 {
		message = message[:117] + "..."
	}
	data := models.NotificationData{"screen": "chat", "conversationId": conversationID}

	notify(ctx, models.Notification{
		UserID:  recipientID,
		Type:    models.NotificationTypeNewMessage,
		Title:   senderName,
		Message: message,
		Data:    data,
	}, NotificationPayload{Title: senderName, Body: message, Data: copyData(data), Priority: "high", Sound: "default"})
}

// NotifyFavoriteSold tells everyone who favorited a listing that it sold.
func NotifyFavoriteSold(ctx context.Context, userIDs []string, listingID, listingTitle string) {
	message := fmt.Sprintf("%s has been sold", listingTitle)
	data := models.NotificationData{"screen": "listing", "listingId": listingID}

	for _, userID := range userIDs {
		if !shouldSendDebounced(ctx, models.NotificationTypeFavoriteSold, userID, listingID, favoriteDebounceMinutes) {
			continue
		}
		notify(ctx, models.Notification{
			UserID:  userID,
			Type:    models.NotificationTypeFavoriteSold,
			Title:   "A favorite was sold",
			Message: message,
			Data:    data,
		}, NotificationPayload{Title: "A favorite was sold", Body: message, Data: copyData(data)})
	}
}

// NotifyViewsMilestone tells a listing owner when views reach a milestone.
func NotifyViewsMilestone(ctx context.Context, ownerID, listingID, listingTitle string, views int) {
	if !IsViewsMilestone(views) {
		return
	}
	entity := listingID + ":" + strconv.Itoa(views)
	if !shouldSendDebounced(ctx, models.NotificationTypeViewsMilestone, ownerID, entity, milestoneDebounceMinutes) {
		return
	}

	message := fmt.Sprintf("%s reached %d views", listingTitle, views)
	data := models.NotificationData{"screen": "listing", "listingId": listingID, "views": strconv.Itoa(views)}

	notify(ctx, models.Notification{
		UserID:  ownerID,
		Type:    models.NotificationTypeViewsMilestone,
		Title:   "Your listing is popular",
		Message: message,
		Data:    data,
	}, NotificationPayload{Title: "Your listing is popular", Body: message, Data: copyData(data)})
}

func copyData(d models.NotificationData) map[string]string {
	out := make(map[string]string, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
