package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Notification type constants
const (
	NotificationTypeNewMessage     = "NEW_MESSAGE"
	NotificationTypeFavoriteSold   = "FAVORITE_SOLD"
	NotificationTypeViewsMilestone = "VIEWS_MILESTONE"
	NotificationTypeGeneral        = "GENERAL"
)

type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"userId" db:"user_id"`
	Type      string           `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Data      NotificationData `json:"data" db:"data"`
	IsRead    bool             `json:"isRead" db:"is_read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at" goqu:"skipinsert"`
}

// NotificationData carries the navigation payload, stored as jsonb.
type NotificationData map[string]string

func (d NotificationData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *NotificationData) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = NotificationData{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported notification data type %T", src)
	}
}
