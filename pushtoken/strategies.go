package pushtoken

import (
	"context"
	"errors"
	"time"

	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/tokentable"
	"github.com/sethvargo/go-retry"
)

type StrategyInput struct {
	UserID     string
	Token      string
	DeviceType string
}

func (in StrategyInput) row() models.PushToken {
	return models.PushToken{
		UserID:     in.UserID,
		Token:      in.Token,
		DeviceType: in.DeviceType,
		SignedIn:   true,
		Active:     true,
	}
}

// Strategy is one way of writing the device's row to the remote table.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, in StrategyInput) (*models.PushToken, error)
}

// DefaultStrategies tries, in order: deactivate the user's other tokens for
// this device type and upsert; update an existing row by token value;
// insert a new row.
func DefaultStrategies(table tokentable.Table) []Strategy {
	return []Strategy{
		{
			Name: "deactivate_and_upsert",
			Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
				if err := table.DeactivateOthers(ctx, in.UserID, in.DeviceType, in.Token); err != nil {
					return nil, err
				}
				return table.Upsert(ctx, in.row())
			},
		},
		{
			Name: "update_by_token",
			Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
				return table.UpdateByToken(ctx, in.row())
			},
		},
		{
			Name: "insert",
			Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
				return table.Insert(ctx, in.row())
			},
		},
	}
}

// stepRunner applies the per-step timeout and linear retry policy shared by
// every remote write.
type stepRunner struct {
	session *Session
	timeout time.Duration
	retries int
	delay   time.Duration
}

func (s stepRunner) backoff() retry.Backoff {
	var n time.Duration
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return n * s.delay, false
	})
	return retry.WithMaxRetries(uint64(s.retries), linear)
}

// run retries transient failures of fn. ErrNotFound and ErrConflict are
// answers, not failures, and end the step at once.
func (s stepRunner) run(ctx context.Context, fn func(ctx context.Context) (*models.PushToken, error)) (*models.PushToken, error) {
	var out *models.PushToken
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		if s.session.SigningOut() {
			return ErrSigningOut
		}
		row, err := callWithTimeout(ctx, s.timeout, fn)
		if err == nil {
			out = row
			return nil
		}
		if errors.Is(err, tokentable.ErrNotFound) || errors.Is(err, tokentable.ErrConflict) {
			return err
		}
		return retry.RetryableError(err)
	})
	return out, err
}

// runStrategies returns the first strategy result that succeeds. onFailure
// sees every strategy that did not.
func runStrategies(ctx context.Context, steps stepRunner, strategies []Strategy, in StrategyInput, onFailure func(name string, err error)) (*models.PushToken, bool) {
	for _, st := range strategies {
		st := st
		row, err := steps.run(ctx, func(ctx context.Context) (*models.PushToken, error) {
			return st.Run(ctx, in)
		})
		if err == nil && row != nil {
			return row, true
		}
		if err == nil {
			err = errors.New("strategy returned no row")
		}
		onFailure(st.Name, err)
		if errors.Is(err, ErrSigningOut) {
			return nil, false
		}
	}
	return nil, false
}
