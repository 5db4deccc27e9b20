// Package tokentable is the remote user_push_tokens table and the
// notification rows the engine reads unread counts from.
package tokentable

import (
	"context"
	"errors"
	"time"

	"github.com/CarMarket/pushsync/models"
)

const pushTokensTable = "user_push_tokens"

var (
	ErrNotFound = errors.New("tokentable: row not found")
	ErrConflict = errors.New("tokentable: row already exists")
)

// Table is the remote push token store. Writes are last-writer-wins per row;
// the (user_id, token) unique constraint is the only duplicate guard.
type Table interface {
	Find(ctx context.Context, userID, token string) (*models.PushToken, error)
	// DeactivateOthers marks every other active token of the user's device
	// type inactive.
	DeactivateOthers(ctx context.Context, userID, deviceType, keepToken string) error
	Upsert(ctx context.Context, row models.PushToken) (*models.PushToken, error)
	UpdateByToken(ctx context.Context, row models.PushToken) (*models.PushToken, error)
	Insert(ctx context.Context, row models.PushToken) (*models.PushToken, error)
	SetSignedIn(ctx context.Context, userID, token string, signedIn bool) error
	ListDeliverable(ctx context.Context, userID string) ([]models.PushToken, error)
	DeactivateToken(ctx context.Context, token string) error
	PurgeInactive(ctx context.Context, before time.Time) (int64, error)
}
