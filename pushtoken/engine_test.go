package pushtoken

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/securestore"
	"github.com/CarMarket/pushsync/tokentable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine_ResolvesProjectID(t *testing.T) {
	const updatesProject = "7d4e2f1a-3b5c-4d6e-8f90-a1b2c3d4e5f6"

	tests := []struct {
		name        string
		envProject  string
		buildConfig string
		expected    string
	}{
		{
			name:        "env wins over build config",
			envProject:  "env-project",
			buildConfig: `{"expo": {"extra": {"eas": {"projectId": "eas-project"}}}}`,
			expected:    "env-project",
		},
		{
			name:        "eas build config",
			buildConfig: `{"expo": {"extra": {"eas": {"projectId": "eas-project"}, "projectId": "extra-project"}}}`,
			expected:    "eas-project",
		},
		{
			name:        "updates url",
			buildConfig: `{"updates": {"url": "https://u.expo.dev/` + updatesProject + `"}}`,
			expected:    updatesProject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProjectEnv(t)
			t.Setenv("EXPO_PUBLIC_PROJECT_ID", tt.envProject)
			path := filepath.Join(t.TempDir(), "app.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.buildConfig), 0o600))
			t.Setenv("BUILD_CONFIG_PATH", path)

			h := newHarness(t)
			_, err := h.engine.Registrar.RegisterForPushNotifications(context.Background(), "user-1", true)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, h.sim.LastProjectID())
		})
	}
}

func TestNewEngine_ExplicitProjectIDWins(t *testing.T) {
	t.Setenv("EXPO_PUBLIC_PROJECT_ID", "env-project")
	sim := platform.NewSimulator()
	sim.SetPermission(platform.PermissionGranted, true)

	eng := NewEngine(Deps{
		Platform:  sim,
		Store:     securestore.NewMemoryStore(),
		Table:     tokentable.NewMemoryTable(),
		Clock:     newFakeClock(),
		Config:    testConfig(),
		ProjectID: "explicit-project",
	})
	_, err := eng.Registrar.RegisterForPushNotifications(context.Background(), "user-1", true)
	require.NoError(t, err)

	assert.Equal(t, "explicit-project", sim.LastProjectID())
}

func TestNewDeviceEngine(t *testing.T) {
	dir := t.TempDir()
	clearProjectEnv(t)
	t.Setenv("EXPO_PUBLIC_PROJECT_ID", "device-project")
	t.Setenv("SECURE_STORE_DIR", dir)
	t.Setenv("SECURE_STORE_SECRET", "device-secret")
	t.Setenv("SECURE_STORE_SALT", "device-salt")
	t.Setenv("PUSH_SIGNOUT_SETTLE", "3s")

	sim := platform.NewSimulator()
	sim.SetPermission(platform.PermissionGranted, true)

	eng, err := NewDeviceEngine(Deps{
		Platform: sim,
		Table:    tokentable.NewMemoryTable(),
		Clock:    newFakeClock(),
	})
	require.NoError(t, err)

	reg, err := eng.Registrar.RegisterForPushNotifications(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, "device-project", sim.LastProjectID())

	// a second process with the same secret reads what the first stored
	store, err := securestore.NewFileStore(dir, []byte("device-secret"), []byte("device-salt"))
	require.NoError(t, err)
	rec, err := securestore.NewTokenStore(store).LoadToken(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, reg.Token, rec.Token)
}

func TestNewDeviceEngine_RequiresSecret(t *testing.T) {
	t.Setenv("SECURE_STORE_DIR", t.TempDir())
	t.Setenv("SECURE_STORE_SECRET", "")

	_, err := NewDeviceEngine(Deps{Platform: platform.NewSimulator(), Table: tokentable.NewMemoryTable()})
	assert.Error(t, err)
}
