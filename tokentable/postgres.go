package tokentable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CarMarket/pushsync/models"
	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
)

var pushTokenColumns = []interface{}{
	"id", "user_id", "token", "device_type", "signed_in", "active", "last_updated",
}

type PostgresTable struct {
	db *goqu.Database
}

func NewPostgresTable(db *goqu.Database) *PostgresTable {
	return &PostgresTable{db: db}
}

func (p *PostgresTable) Find(ctx context.Context, userID, token string) (*models.PushToken, error) {
	var row models.PushToken
	found, err := p.db.From(pushTokensTable).
		Select(pushTokenColumns...).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("token").Eq(token),
		).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("find push token: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (p *PostgresTable) DeactivateOthers(ctx context.Context, userID, deviceType, keepToken string) error {
	_, err := p.db.Update(pushTokensTable).
		Set(goqu.Record{"active": false, "last_updated": goqu.L("NOW()")}).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("device_type").Eq(deviceType),
			goqu.C("token").Neq(keepToken),
			goqu.C("active").IsTrue(),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("deactivate push tokens: %w", err)
	}
	return nil
}

func (p *PostgresTable) Upsert(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	var out models.PushToken
	found, err := p.db.Insert(pushTokensTable).
		Rows(insertRecord(row)).
		OnConflict(goqu.DoUpdate("user_id, token", goqu.Record{
			"device_type":  goqu.L("EXCLUDED.device_type"),
			"signed_in":    goqu.L("EXCLUDED.signed_in"),
			"active":       goqu.L("EXCLUDED.active"),
			"last_updated": goqu.L("NOW()"),
		})).
		Returning(pushTokenColumns...).
		Executor().ScanStructContext(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("upsert push token: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("upsert push token: no row returned")
	}
	return &out, nil
}

func (p *PostgresTable) UpdateByToken(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	var out models.PushToken
	found, err := p.db.Update(pushTokensTable).
		Set(goqu.Record{
			"device_type":  row.DeviceType,
			"signed_in":    row.SignedIn,
			"active":       row.Active,
			"last_updated": goqu.L("NOW()"),
		}).
		Where(
			goqu.C("user_id").Eq(row.UserID),
			goqu.C("token").Eq(row.Token),
		).
		Returning(pushTokenColumns...).
		Executor().ScanStructContext(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("update push token: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &out, nil
}

func (p *PostgresTable) Insert(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	var out models.PushToken
	found, err := p.db.Insert(pushTokensTable).
		Rows(insertRecord(row)).
		Returning(pushTokenColumns...).
		Executor().ScanStructContext(ctx, &out)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert push token: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("insert push token: no row returned")
	}
	return &out, nil
}

func (p *PostgresTable) SetSignedIn(ctx context.Context, userID, token string, signedIn bool) error {
	result, err := p.db.Update(pushTokensTable).
		Set(goqu.Record{"signed_in": signedIn, "last_updated": goqu.L("NOW()")}).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("token").Eq(token),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("set signed_in: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresTable) ListDeliverable(ctx context.Context, userID string) ([]models.PushToken, error) {
	var rows []models.PushToken
	err := p.db.From(pushTokensTable).
		Select(pushTokenColumns...).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("active").IsTrue(),
			goqu.C("signed_in").IsTrue(),
		).
		Order(goqu.C("last_updated").Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list push tokens for user %s: %w", userID, err)
	}
	return rows, nil
}

func (p *PostgresTable) DeactivateToken(ctx context.Context, token string) error {
	_, err := p.db.Update(pushTokensTable).
		Set(goqu.Record{"active": false, "last_updated": goqu.L("NOW()")}).
		Where(goqu.C("token").Eq(token)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("deactivate push token: %w", err)
	}
	return nil
}

func (p *PostgresTable) PurgeInactive(ctx context.Context, before time.Time) (int64, error) {
	result, err := p.db.Delete(pushTokensTable).
		Where(
			goqu.C("active").IsFalse(),
			goqu.C("last_updated").Lt(before),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge inactive push tokens: %w", err)
	}
	return result.RowsAffected()
}

func insertRecord(row models.PushToken) goqu.Record {
	return goqu.Record{
		"user_id":      row.UserID,
		"token":        row.Token,
		"device_type":  row.DeviceType,
		"signed_in":    row.SignedIn,
		"active":       row.Active,
		"last_updated": goqu.L("NOW()"),
	}
}
