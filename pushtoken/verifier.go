package pushtoken

import (
	"context"
	"errors"

	"github.com/CarMarket/pushsync/config"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/securestore"
	"github.com/CarMarket/pushsync/tokentable"
	"go.uber.org/zap"
)

// Verifier decides whether the stored token is usable for a user.
type Verifier struct {
	tokens *securestore.TokenStore
	table  tokentable.Table
	cache  *verificationCache
	clock  Clock
	cfg    config.Config
	diag   *Diagnostics
}

func NewVerifier(tokens *securestore.TokenStore, table tokentable.Table, clock Clock, cfg config.Config, diag *Diagnostics) *Verifier {
	return &Verifier{
		tokens: tokens,
		table:  table,
		cache:  newVerificationCache(clock.Now),
		clock:  clock,
		cfg:    cfg,
		diag:   diag,
	}
}

// ForceTokenVerification checks the cache, then local storage, then the
// remote table. A remote timeout yields an optimistic result cached for
// VerifyTimeoutTTL; a missing or mismatched row is invalid and not cached.
func (v *Verifier) ForceTokenVerification(ctx context.Context, userID string) models.VerificationResult {
	if cached, ok := v.cache.get(userID); ok {
		return cached
	}

	rec, err := v.tokens.LoadToken(ctx)
	if err != nil {
		v.diag.Record("verify.load_token", err)
		return models.VerificationResult{}
	}
	if rec == nil {
		return models.VerificationResult{}
	}

	if v.clock.Now().Sub(rec.Timestamp) < v.cfg.FreshnessThreshold {
		return models.VerificationResult{IsValid: true, TokenID: rec.TokenID, Token: rec.Token}
	}

	row, err := callWithTimeout(ctx, v.cfg.RemoteTimeout, func(ctx context.Context) (*models.PushToken, error) {
		return v.table.Find(ctx, userID, rec.Token)
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		v.diag.Record("verify.remote_timeout", err)
		result := models.VerificationResult{IsValid: true, TokenID: rec.TokenID, Token: rec.Token}
		v.cache.put(userID, result, v.cfg.VerifyTimeoutTTL)
		return result
	case errors.Is(err, tokentable.ErrNotFound):
		zap.S().Infow("stored push token has no remote row", "userId", userID, "token", platform.Redact(rec.Token))
		return models.VerificationResult{}
	case err != nil:
		v.diag.Record("verify.remote", err)
		return models.VerificationResult{}
	}

	if row.Token != rec.Token || !row.Active {
		return models.VerificationResult{}
	}

	if rec.TokenID != row.ID {
		rec.TokenID = row.ID
		if err := v.tokens.SaveToken(ctx, *rec); err != nil {
			v.diag.Record("verify.save_token_id", err)
		}
	}

	signedIn := row.SignedIn
	result := models.VerificationResult{IsValid: true, TokenID: row.ID, Token: row.Token, SignedIn: &signedIn}
	v.cache.put(userID, result, v.cfg.VerifyCacheTTL)
	return result
}

func (v *Verifier) Invalidate(userID string) {
	v.cache.invalidate(userID)
}
