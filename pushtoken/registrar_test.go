package pushtoken

import (
	"context"
	"errors"
	"testing"

	"github.com/CarMarket/pushsync/config"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/tokentable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProjectEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EXPO_PUBLIC_PROJECT_ID", "")
	t.Setenv("EAS_PROJECT_ID", "")
	t.Setenv("BUILD_CONFIG_PATH", "")
}

func TestRegister_FreshInstall(t *testing.T) {
	clearProjectEnv(t)
	h := newHarness(t)
	ctx := context.Background()

	reg, err := h.engine.Registrar.RegisterForPushNotifications(ctx, "user-1", false)
	require.NoError(t, err)

	assert.True(t, platform.ValidToken(reg.Token))
	assert.True(t, reg.Synced)
	assert.Equal(t, config.FallbackProjectID, h.sim.LastProjectID())

	rows := h.memory.Rows("user-1")
	require.Len(t, rows, 1)
	assert.Equal(t, reg.Token, rows[0].Token)
	assert.True(t, rows[0].Active)
	assert.True(t, rows[0].SignedIn)
	assert.Equal(t, models.DeviceTypeAndroid, rows[0].DeviceType)

	rec := h.localToken(t)
	require.NotNil(t, rec)
	assert.Equal(t, rows[0].ID, rec.TokenID)
	assert.Equal(t, rows[0].ID, reg.TokenID)
}

func TestRegister_Idempotent(t *testing.T) {
	tests := []struct {
		name  string
		force bool
	}{
		{name: "reuses verified token", force: false},
		{name: "forced refresh upserts same row", force: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			first, err := h.engine.Registrar.RegisterForPushNotifications(ctx, "user-1", tt.force)
			require.NoError(t, err)
			second, err := h.engine.Registrar.RegisterForPushNotifications(ctx, "user-1", tt.force)
			require.NoError(t, err)

			assert.Equal(t, first.Token, second.Token)
			assert.Equal(t, first.TokenID, second.TokenID)
			assert.Len(t, h.memory.Rows("user-1"), 1)
		})
	}
}

func TestRegister_ReuseSkipsPlatform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Registrar.RegisterForPushNotifications(ctx, "user-1", false)
	require.NoError(t, err)
	h.clock.Advance(h.cfg.FreshnessThreshold * 2)

	_, err = h.engine.Registrar.RegisterForPushNotifications(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.sim.TokenCalls())
}

func TestRegister_ReuseMarksRowSignedIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg, err := h.engine.Registrar.RegisterForPushNotifications(ctx, "user-1", false)
	require.NoError(t, err)
	require.NoError(t, h.memory.SetSignedIn(ctx, "user-1", reg.Token, false))
	h.clock.Advance(h.cfg.FreshnessThreshold * 2)

	again, err := h.engine.Registrar.RegisterForPushNotifications(ctx, "user-1", false)
	require.NoError(t, err)
	assert.True(t, again.Synced)

	rows := h.memory.Rows("user-1")
	require.Len(t, rows, 1)
	assert.True(t, rows[0].SignedIn)
	assert.Equal(t, 1, h.sim.TokenCalls())
}

func TestRegister_RejectsMalformedToken(t *testing.T) {
	h := newHarness(t)
	h.sim.SetToken("not-a-push-token")

	_, err := h.engine.Registrar.RegisterForPushNotifications(context.Background(), "user-1", false)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, h.localToken(t))
	assert.Empty(t, h.memory.Rows("user-1"))
}

func TestRegister_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		wantErr error
	}{
		{
			name:    "simulated device",
			setup:   func(h *harness) { h.sim.SetDevice(false) },
			wantErr: ErrNotDevice,
		},
		{
			name:    "permission denied",
			setup:   func(h *harness) { h.sim.SetPermission(platform.PermissionDenied, false) },
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "ask declined",
			setup:   func(h *harness) { h.sim.SetPermission(platform.PermissionUndetermined, false) },
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "signing out",
			setup:   func(h *harness) { h.engine.Session.BeginSignOut() },
			wantErr: ErrSigningOut,
		},
		{
			name:    "token acquisition fails",
			setup:   func(h *harness) { h.sim.SetTokenError(errors.New("no play services")) },
			wantErr: ErrTokenAcquisition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			reg, err := h.engine.Registrar.RegisterForPushNotifications(context.Background(), "user-1", true)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, reg.Token)
			assert.Nil(t, h.localToken(t))
			assert.Empty(t, h.memory.Rows("user-1"))
		})
	}
}

func TestRegister_AskGrantsPermission(t *testing.T) {
	h := newHarness(t)
	h.sim.SetPermission(platform.PermissionUndetermined, true)

	reg, err := h.engine.Registrar.RegisterForPushNotifications(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.True(t, reg.Synced)
}

func TestRegister_RemoteOutageKeepsLocalToken(t *testing.T) {
	h := newHarness(t)
	h.table.SetFailWrites(true)

	reg, err := h.engine.Registrar.RegisterForPushNotifications(context.Background(), "user-1", false)
	require.NoError(t, err)

	assert.True(t, platform.ValidToken(reg.Token))
	assert.False(t, reg.Synced)
	assert.Empty(t, reg.TokenID)

	rec := h.localToken(t)
	require.NotNil(t, rec)
	assert.Equal(t, reg.Token, rec.Token)

	// each strategy is tried once plus one retry
	assert.Equal(t, 2, h.table.Calls("deactivate_others"))
	assert.Equal(t, 2, h.table.Calls("update_by_token"))
	assert.Equal(t, 2, h.table.Calls("insert"))

	var ops []string
	for _, e := range h.engine.Diagnostics.Entries() {
		ops = append(ops, e.Operation)
	}
	assert.Contains(t, ops, "register.strategy.deactivate_and_upsert")
	assert.Contains(t, ops, "register.strategy.update_by_token")
	assert.Contains(t, ops, "register.strategy.insert")
}

func TestRegister_StrategiesInOrder(t *testing.T) {
	h := newHarness(t)
	var order []string

	h.engine.Registrar.WithStrategies([]Strategy{
		{Name: "first", Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
			order = append(order, "first")
			return nil, tokentable.ErrConflict
		}},
		{Name: "second", Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
			order = append(order, "second")
			return &models.PushToken{ID: "row-2", UserID: in.UserID, Token: in.Token}, nil
		}},
		{Name: "third", Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
			order = append(order, "third")
			return nil, nil
		}},
	})

	reg, err := h.engine.Registrar.RegisterForPushNotifications(context.Background(), "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, "row-2", reg.TokenID)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRegister_AbortsWhenSignOutStartsMidWrite(t *testing.T) {
	h := newHarness(t)
	calls := 0

	h.engine.Registrar.WithStrategies([]Strategy{
		{Name: "racing", Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
			calls++
			h.engine.Session.BeginSignOut()
			return nil, errRemoteDown
		}},
		{Name: "never", Run: func(ctx context.Context, in StrategyInput) (*models.PushToken, error) {
			calls++
			return &models.PushToken{ID: "row"}, nil
		}},
	})

	_, err := h.engine.Registrar.RegisterForPushNotifications(context.Background(), "user-1", true)
	assert.ErrorIs(t, err, ErrSigningOut)
	assert.Equal(t, 1, calls)
	assert.Nil(t, h.localToken(t))
}
