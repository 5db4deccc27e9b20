package securestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/platform"
	"go.uber.org/zap"
)

const (
	tokenRecordKey       = "push_token_record"
	registrationStateKey = "push_registration_state"
	forceRegistrationKey = "push_force_registration"
)

var ErrInvalidToken = errors.New("securestore: token has invalid format")

// TokenStore is the typed view of the device's push token bookkeeping.
// Invariant: a stored token always has a valid platform format.
type TokenStore struct {
	store Store
}

func NewTokenStore(store Store) *TokenStore {
	return &TokenStore{store: store}
}

// LoadToken returns the stored record, or nil when there is none. Records
// that are unreadable or hold a malformed token are purged and reported as
// absent.
func (t *TokenStore) LoadToken(ctx context.Context) (*models.LocalTokenRecord, error) {
	raw, ok, err := t.store.GetItem(ctx, tokenRecordKey)
	if err != nil {
		if errors.Is(err, ErrTampered) {
			return nil, t.purgeToken(ctx, "tampered record")
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var rec models.LocalTokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, t.purgeToken(ctx, "undecodable record")
	}
	if !platform.ValidToken(rec.Token) {
		return nil, t.purgeToken(ctx, "malformed token")
	}
	return &rec, nil
}

func (t *TokenStore) purgeToken(ctx context.Context, reason string) error {
	zap.S().Warnw("purging stored push token", "reason", reason)
	return t.store.DeleteItem(ctx, tokenRecordKey)
}

func (t *TokenStore) SaveToken(ctx context.Context, rec models.LocalTokenRecord) error {
	if !platform.ValidToken(rec.Token) {
		return ErrInvalidToken
	}
	return t.putJSON(ctx, tokenRecordKey, rec)
}

func (t *TokenStore) ClearToken(ctx context.Context) error {
	return t.store.DeleteItem(ctx, tokenRecordKey)
}

// LoadState returns nil when no registration has been attempted yet.
func (t *TokenStore) LoadState(ctx context.Context) (*models.RegistrationState, error) {
	raw, ok, err := t.store.GetItem(ctx, registrationStateKey)
	if err != nil {
		if errors.Is(err, ErrTampered) {
			return nil, t.store.DeleteItem(ctx, registrationStateKey)
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var st models.RegistrationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, t.store.DeleteItem(ctx, registrationStateKey)
	}
	return &st, nil
}

func (t *TokenStore) SaveState(ctx context.Context, st models.RegistrationState) error {
	return t.putJSON(ctx, registrationStateKey, st)
}

func (t *TokenStore) ClearState(ctx context.Context) error {
	return t.store.DeleteItem(ctx, registrationStateKey)
}

func (t *TokenStore) SetForceRegistration(ctx context.Context, pending bool) error {
	if !pending {
		return t.store.DeleteItem(ctx, forceRegistrationKey)
	}
	return t.store.SetItem(ctx, forceRegistrationKey, "true")
}

func (t *TokenStore) ForceRegistrationPending(ctx context.Context) (bool, error) {
	v, ok, err := t.store.GetItem(ctx, forceRegistrationKey)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

func (t *TokenStore) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return t.store.SetItem(ctx, key, string(raw))
}
