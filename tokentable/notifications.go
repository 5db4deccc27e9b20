package tokentable

import (
	"context"
	"fmt"

	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/realtime"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

const notificationsTable = "notifications"

var notificationColumns = []interface{}{
	"id", "user_id", "type", "title", "message", "data", "is_read", "created_at",
}

// Notifications is what the device side needs from the notification table.
type Notifications interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

type PostgresNotifications struct {
	db *goqu.Database
}

func NewPostgresNotifications(db *goqu.Database) *PostgresNotifications {
	return &PostgresNotifications{db: db}
}

func (p *PostgresNotifications) List(ctx context.Context, userID string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := p.db.From(notificationsTable).
		Select(notificationColumns...).
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("created_at").Desc()).
		ScanStructsContext(ctx, &notifications)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

func (p *PostgresNotifications) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	_, err := p.db.From(notificationsTable).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("is_read").IsFalse(),
		).
		ScanValContext(ctx, &count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (p *PostgresNotifications) MarkRead(ctx context.Context, userID, notificationID string) error {
	result, err := p.db.Update(notificationsTable).
		Set(goqu.Record{"is_read": true}).
		Where(
			goqu.C("id").Eq(notificationID),
			goqu.C("user_id").Eq(userID),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresNotifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := p.db.Update(notificationsTable).
		Set(goqu.Record{"is_read": true}).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("is_read").IsFalse(),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}

// Create inserts the row and publishes it to realtime subscribers.
func (p *PostgresNotifications) Create(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Data == nil {
		n.Data = models.NotificationData{}
	}

	_, err := p.db.Insert(notificationsTable).
		Rows(goqu.Record{
			"id":      n.ID,
			"user_id": n.UserID,
			"type":    n.Type,
			"title":   n.Title,
			"message": n.Message,
			"data":    n.Data,
			"is_read": false,
		}).
		Executor().ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	payload, err := realtime.EncodeEvent(realtime.Event{ID: n.ID, UserID: n.UserID})
	if err != nil {
		return nil, err
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", realtime.NotificationChannel, payload); err != nil {
		return nil, fmt.Errorf("publish notification: %w", err)
	}

	return &n, nil
}
