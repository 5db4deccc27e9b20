package pushtoken

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CarMarket/pushsync/config"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/securestore"
	"go.uber.org/zap"
)

type Connectivity interface {
	Connected(ctx context.Context) bool
}

type registrationRunner interface {
	RegisterForPushNotifications(ctx context.Context, userID string, forceRefresh bool) (Registration, error)
}

// RetryDelay is base * 2^(attempts-1), capped at max.
func RetryDelay(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Controller owns RegistrationState and decides when a registration may run.
type Controller struct {
	registrar registrationRunner
	tokens    *securestore.TokenStore
	session   *Session
	network   Connectivity
	clock     Clock
	cfg       config.Config
	diag      *Diagnostics

	attemptMu sync.Mutex
	// generation moves on every Reset; an attempt started in an older
	// generation must not write state or arm a retry
	generation atomic.Uint64

	timerMu    sync.Mutex
	retryTimer Timer
	retryDelay time.Duration
}

func NewController(
	registrar registrationRunner,
	tokens *securestore.TokenStore,
	session *Session,
	network Connectivity,
	clock Clock,
	cfg config.Config,
	diag *Diagnostics,
) *Controller {
	return &Controller{
		registrar: registrar,
		tokens:    tokens,
		session:   session,
		network:   network,
		clock:     clock,
		cfg:       cfg,
		diag:      diag,
	}
}

// Register runs one registration attempt subject to the cool-down and
// failure-suppression rules, which force bypasses. Failures other than
// terminal ones schedule a retry.
func (c *Controller) Register(ctx context.Context, userID string, force bool) (Registration, error) {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()

	if c.session.SigningOut() {
		return Registration{}, ErrSigningOut
	}

	st := c.loadState(ctx)
	now := c.clock.Now()

	if !force {
		if st.Registered && now.Sub(st.LastAttemptTime) < c.cfg.Cooldown {
			return Registration{}, ErrSkipped
		}
		if st.Attempts >= c.cfg.MaxAttempts && now.Sub(st.LastAttemptTime) < c.cfg.FailureWindow {
			zap.S().Infow("push registration suppressed after repeated failures", "userId", userID, "attempts", st.Attempts)
			return Registration{}, ErrSkipped
		}
	}

	if c.network != nil && !c.network.Connected(ctx) {
		if err := c.tokens.SetForceRegistration(ctx, true); err != nil {
			c.diag.Record("backoff.set_force_flag", err)
		}
		return Registration{}, ErrOffline
	}

	gen := c.generation.Load()
	st.Attempts++
	st.LastAttemptTime = now
	c.saveState(ctx, st)

	reg, err := c.registrar.RegisterForPushNotifications(ctx, userID, force)

	if c.session.SigningOut() || c.generation.Load() != gen {
		return Registration{}, ErrSigningOut
	}

	switch {
	case err == nil && reg.Synced:
		c.saveState(ctx, models.RegistrationState{LastAttemptTime: c.clock.Now(), Registered: true})
		c.cancelRetry()
		return reg, nil
	case errors.Is(err, ErrSigningOut):
		return reg, err
	case terminal(err):
		st.LastError = err.Error()
		c.saveState(ctx, st)
		c.cancelRetry()
		return reg, err
	}

	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = "remote token write failed"
	}
	st.Registered = false
	c.saveState(ctx, st)
	c.scheduleRetry(userID, RetryDelay(c.cfg.BackoffBase, c.cfg.BackoffMax, st.Attempts))
	return reg, err
}

// ConsumeForcedRegistration runs a forced registration if one was deferred
// while offline. The flag is cleared once the attempt finishes, whatever its
// outcome; a failed attempt is left to the retry timer.
func (c *Controller) ConsumeForcedRegistration(ctx context.Context, userID string) (bool, Registration, error) {
	pending, err := c.tokens.ForceRegistrationPending(ctx)
	if err != nil {
		c.diag.Record("backoff.read_force_flag", err)
		return false, Registration{}, err
	}
	if !pending {
		return false, Registration{}, nil
	}

	reg, err := c.Register(ctx, userID, true)
	if clearErr := c.tokens.SetForceRegistration(ctx, false); clearErr != nil {
		c.diag.Record("backoff.clear_force_flag", clearErr)
	}
	return true, reg, err
}

// MarkUnregistered drops the registered flag so the cool-down no longer
// applies; used when verification finds the stored token unusable.
func (c *Controller) MarkUnregistered(ctx context.Context) {
	st, err := c.tokens.LoadState(ctx)
	if err != nil || st == nil || !st.Registered {
		return
	}
	st.Registered = false
	c.saveState(ctx, *st)
}

// Reset stops any pending retry, forgets all bookkeeping and makes an
// attempt still in flight give up without recording its outcome.
func (c *Controller) Reset(ctx context.Context) {
	c.generation.Add(1)
	c.cancelRetry()
	if err := c.tokens.ClearState(ctx); err != nil {
		c.diag.Record("backoff.clear_state", err)
	}
	if err := c.tokens.SetForceRegistration(ctx, false); err != nil {
		c.diag.Record("backoff.clear_force_flag", err)
	}
}

// PendingRetry reports the delay of the scheduled retry, if any.
func (c *Controller) PendingRetry() (time.Duration, bool) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	return c.retryDelay, c.retryTimer != nil
}

func (c *Controller) scheduleRetry(userID string, delay time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	zap.S().Infow("push registration retry scheduled", "userId", userID, "delay", delay)

	var t Timer
	t = c.clock.AfterFunc(delay, func() {
		c.timerMu.Lock()
		if c.retryTimer == t {
			c.retryTimer = nil
		}
		c.timerMu.Unlock()

		if _, err := c.Register(context.Background(), userID, false); err != nil && !errors.Is(err, ErrSkipped) {
			c.diag.Record("backoff.retry", err)
		}
	})
	c.retryTimer = t
	c.retryDelay = delay
}

func (c *Controller) cancelRetry() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryDelay = 0
}

func (c *Controller) loadState(ctx context.Context) models.RegistrationState {
	st, err := c.tokens.LoadState(ctx)
	if err != nil {
		c.diag.Record("backoff.load_state", err)
	}
	if st == nil {
		return models.RegistrationState{}
	}
	return *st
}

func (c *Controller) saveState(ctx context.Context, st models.RegistrationState) {
	if err := c.tokens.SaveState(ctx, st); err != nil {
		c.diag.Record("backoff.save_state", err)
	}
}
