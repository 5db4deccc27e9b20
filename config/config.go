package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds the tunables of the push token engine.
type Config struct {
	VerifyCacheTTL     time.Duration
	VerifyTimeoutTTL   time.Duration
	FreshnessThreshold time.Duration
	RemoteTimeout      time.Duration
	TokenTimeout       time.Duration

	MaxAttempts   int
	FailureWindow time.Duration
	Cooldown      time.Duration
	BackoffBase   time.Duration
	BackoffMax    time.Duration

	StepRetries    int
	StepRetryDelay time.Duration

	DedupWindow     time.Duration
	SignOutSettle   time.Duration
	DeviceType      string
	SecureStoreDir    string
	SecureStoreSalt   string
	SecureStoreSecret string
}

// Default returns the values the engine ships with.
func Default() Config {
	return Config{
		VerifyCacheTTL:     5 * time.Minute,
		VerifyTimeoutTTL:   time.Minute,
		FreshnessThreshold: 5 * time.Second,
		RemoteTimeout:      5 * time.Second,
		TokenTimeout:       10 * time.Second,
		MaxAttempts:        3,
		FailureWindow:      time.Hour,
		Cooldown:           24 * time.Hour,
		BackoffBase:        30 * time.Second,
		BackoffMax:         30 * time.Minute,
		StepRetries:        2,
		StepRetryDelay:     500 * time.Millisecond,
		DedupWindow:        5 * time.Second,
		SignOutSettle:      2 * time.Second,
		DeviceType:         "android",
		SecureStoreDir:     ".securestore",
		SecureStoreSalt:    "pushsync",
	}
}

// Load overlays PUSH_* environment variables on Default. Unparseable values
// are logged and ignored.
func Load() Config {
	cfg := Default()

	durationVar(&cfg.VerifyCacheTTL, "PUSH_VERIFY_CACHE_TTL")
	durationVar(&cfg.VerifyTimeoutTTL, "PUSH_VERIFY_TIMEOUT_TTL")
	durationVar(&cfg.FreshnessThreshold, "PUSH_FRESHNESS_THRESHOLD")
	durationVar(&cfg.RemoteTimeout, "PUSH_REMOTE_TIMEOUT")
	durationVar(&cfg.TokenTimeout, "PUSH_TOKEN_TIMEOUT")
	intVar(&cfg.MaxAttempts, "PUSH_MAX_ATTEMPTS")
	durationVar(&cfg.FailureWindow, "PUSH_FAILURE_WINDOW")
	durationVar(&cfg.Cooldown, "PUSH_COOLDOWN")
	durationVar(&cfg.BackoffBase, "PUSH_BACKOFF_BASE")
	durationVar(&cfg.BackoffMax, "PUSH_BACKOFF_MAX")
	intVar(&cfg.StepRetries, "PUSH_STEP_RETRIES")
	durationVar(&cfg.StepRetryDelay, "PUSH_STEP_RETRY_DELAY")
	durationVar(&cfg.DedupWindow, "PUSH_DEDUP_WINDOW")
	durationVar(&cfg.SignOutSettle, "PUSH_SIGNOUT_SETTLE")

	if v := os.Getenv("PUSH_DEVICE_TYPE"); v != "" {
		cfg.DeviceType = v
	}
	if v := os.Getenv("SECURE_STORE_DIR"); v != "" {
		cfg.SecureStoreDir = v
	}
	if v := os.Getenv("SECURE_STORE_SALT"); v != "" {
		cfg.SecureStoreSalt = v
	}
	cfg.SecureStoreSecret = os.Getenv("SECURE_STORE_SECRET")

	return cfg
}

func durationVar(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		zap.S().Warnw("ignoring invalid duration", "key", key, "value", v)
		return
	}
	*dst = d
}

func intVar(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		zap.S().Warnw("ignoring invalid integer", "key", key, "value", v)
		return
	}
	*dst = n
}
