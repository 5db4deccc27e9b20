package pushtoken

import (
	"context"
	"errors"
	"fmt"

	"github.com/CarMarket/pushsync/config"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/securestore"
	"github.com/CarMarket/pushsync/tokentable"
	"go.uber.org/zap"
)

// Registration is the outcome of a registration pass. Synced is false when
// the token is held locally but the remote row could not be written.
type Registration struct {
	Token   string
	TokenID string
	Synced  bool
}

type Registrar struct {
	platform   platform.Service
	tokens     *securestore.TokenStore
	table      tokentable.Table
	verifier   *Verifier
	session    *Session
	clock      Clock
	cfg        config.Config
	diag       *Diagnostics
	projectID  string
	strategies []Strategy
}

func NewRegistrar(
	svc platform.Service,
	tokens *securestore.TokenStore,
	table tokentable.Table,
	verifier *Verifier,
	session *Session,
	clock Clock,
	cfg config.Config,
	diag *Diagnostics,
	projectID string,
) *Registrar {
	return &Registrar{
		platform:   svc,
		tokens:     tokens,
		table:      table,
		verifier:   verifier,
		session:    session,
		clock:      clock,
		cfg:        cfg,
		diag:       diag,
		projectID:  projectID,
		strategies: DefaultStrategies(table),
	}
}

// WithStrategies replaces the remote write chain.
func (r *Registrar) WithStrategies(strategies []Strategy) *Registrar {
	r.strategies = strategies
	return r
}

func (r *Registrar) steps() stepRunner {
	return stepRunner{
		session: r.session,
		timeout: r.cfg.RemoteTimeout,
		retries: r.cfg.StepRetries,
		delay:   r.cfg.StepRetryDelay,
	}
}

// RegisterForPushNotifications makes sure the device holds a valid token
// for userID and that the remote table knows it. The token is returned
// whenever it was saved locally, even if every remote write failed.
func (r *Registrar) RegisterForPushNotifications(ctx context.Context, userID string, forceRefresh bool) (Registration, error) {
	if r.session.SigningOut() {
		return Registration{}, ErrSigningOut
	}
	if !r.platform.IsDevice() {
		return Registration{}, ErrNotDevice
	}

	if !forceRefresh {
		if reg, ok := r.reuseVerified(ctx, userID); ok {
			return reg, nil
		}
	}

	if err := r.ensurePermission(ctx); err != nil {
		return Registration{}, err
	}

	token, err := callWithTimeout(ctx, r.cfg.TokenTimeout, func(ctx context.Context) (string, error) {
		return r.platform.GetToken(ctx, r.projectID)
	})
	if err != nil {
		r.diag.Record("register.get_token", err)
		return Registration{}, fmt.Errorf("%w: %v", ErrTokenAcquisition, err)
	}
	if !platform.ValidToken(token) {
		r.diag.Record("register.validate", fmt.Errorf("rejected token %q", platform.Redact(token)))
		return Registration{}, ErrInvalidToken
	}

	if r.session.SigningOut() {
		return Registration{}, ErrSigningOut
	}

	rec := models.LocalTokenRecord{Token: token, Timestamp: r.clock.Now()}
	if prev, err := r.tokens.LoadToken(ctx); err == nil && prev != nil && prev.Token == token {
		rec.TokenID = prev.TokenID
	}
	if err := r.tokens.SaveToken(ctx, rec); err != nil {
		r.diag.Record("register.save_local", err)
		return Registration{}, fmt.Errorf("save token locally: %w", err)
	}

	if r.session.SigningOut() {
		if err := r.tokens.ClearToken(ctx); err != nil {
			r.diag.Record("register.abort_clear", err)
		}
		return Registration{}, ErrSigningOut
	}

	in := StrategyInput{UserID: userID, Token: token, DeviceType: r.cfg.DeviceType}
	row, ok := runStrategies(ctx, r.steps(), r.strategies, in, func(name string, err error) {
		r.diag.Record("register.strategy."+name, err)
	})
	if r.session.SigningOut() {
		r.abandon(ctx, userID, token, ok)
		return Registration{}, ErrSigningOut
	}
	if !ok {
		zap.S().Warnw("push token saved locally but not remotely", "userId", userID, "token", platform.Redact(token))
		return Registration{Token: token, TokenID: rec.TokenID}, nil
	}

	rec.TokenID = row.ID
	if err := r.tokens.SaveToken(ctx, rec); err != nil {
		r.diag.Record("register.save_token_id", err)
	}
	r.verifier.Invalidate(userID)

	zap.S().Infow("push token registered", "userId", userID, "tokenId", row.ID, "token", platform.Redact(token))
	return Registration{Token: token, TokenID: row.ID, Synced: true}, nil
}

// abandon undoes what an attempt overtaken by a sign-out left behind: the
// local token, and the signed-in flag a remote write may have set after the
// sign-out marked the row.
func (r *Registrar) abandon(ctx context.Context, userID, token string, written bool) {
	if err := r.tokens.ClearToken(ctx); err != nil {
		r.diag.Record("register.abort_clear", err)
	}
	if !written {
		return
	}
	_, err := callWithTimeout(ctx, r.cfg.RemoteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.table.SetSignedIn(ctx, userID, token, false)
	})
	if err != nil && !errors.Is(err, tokentable.ErrNotFound) {
		r.diag.Record("register.abort_signed_out", err)
	}
	zap.S().Infow("push registration abandoned for sign-out", "userId", userID)
}

// reuseVerified short-circuits when the stored token verifies, making sure
// its row is flagged signed in.
func (r *Registrar) reuseVerified(ctx context.Context, userID string) (Registration, bool) {
	res := r.verifier.ForceTokenVerification(ctx, userID)
	if !res.IsValid {
		return Registration{}, false
	}

	reg := Registration{Token: res.Token, TokenID: res.TokenID, Synced: true}
	if res.SignedIn != nil && *res.SignedIn {
		return reg, true
	}

	_, err := callWithTimeout(ctx, r.cfg.RemoteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.table.SetSignedIn(ctx, userID, res.Token, true)
	})
	switch {
	case errors.Is(err, tokentable.ErrNotFound):
		// the row is gone; fall through to a full registration
		return Registration{}, false
	case err != nil:
		r.diag.Record("register.mark_signed_in", err)
		reg.Synced = false
	default:
		r.verifier.Invalidate(userID)
	}
	return reg, true
}

func (r *Registrar) ensurePermission(ctx context.Context) error {
	status, err := r.platform.GetPermissions(ctx)
	if err != nil {
		r.diag.Record("register.get_permissions", err)
	}
	if status == platform.PermissionGranted {
		return nil
	}

	status, err = r.platform.RequestPermissions(ctx)
	if err != nil {
		r.diag.Record("register.request_permissions", err)
	}
	if status != platform.PermissionGranted {
		return ErrPermissionDenied
	}
	return nil
}
