package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FallbackProjectID is used when no build profile supplies an identifier.
const FallbackProjectID = "3f2c8a4e-6b1d-4c8f-9a27-5d0e1b7c9f42"

var updatesURLPattern = regexp.MustCompile(`u\.expo\.dev/([0-9a-fA-F-]{36})`)

// BuildConfig is the subset of app.json the project identifier can come from.
type BuildConfig struct {
	Extra struct {
		EAS struct {
			ProjectID string `json:"projectId"`
		} `json:"eas"`
		ProjectID string `json:"projectId"`
	} `json:"extra"`
	Updates struct {
		URL string `json:"url"`
	} `json:"updates"`
}

// LoadBuildConfig reads an app.json, accepting both the {"expo": {...}}
// wrapper and a bare config object.
func LoadBuildConfig(path string) (*BuildConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build config: %w", err)
	}

	var wrapped struct {
		Expo *BuildConfig `json:"expo"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("parse build config: %w", err)
	}
	if wrapped.Expo != nil {
		return wrapped.Expo, nil
	}

	var bc BuildConfig
	if err := json.Unmarshal(raw, &bc); err != nil {
		return nil, fmt.Errorf("parse build config: %w", err)
	}
	return &bc, nil
}

// ProjectIDResolver yields an identifier or reports that its source is empty.
type ProjectIDResolver func() (string, bool)

func FromEnv(lookup func(string) (string, bool), keys ...string) ProjectIDResolver {
	return func() (string, bool) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
}

func FromEASConfig(bc *BuildConfig) ProjectIDResolver {
	return func() (string, bool) {
		if bc == nil || bc.Extra.EAS.ProjectID == "" {
			return "", false
		}
		return bc.Extra.EAS.ProjectID, true
	}
}

func FromExtraConfig(bc *BuildConfig) ProjectIDResolver {
	return func() (string, bool) {
		if bc == nil || bc.Extra.ProjectID == "" {
			return "", false
		}
		return bc.Extra.ProjectID, true
	}
}

// FromUpdatesURL extracts the identifier embedded in an update-feed URL
// such as https://u.expo.dev/<uuid>.
func FromUpdatesURL(bc *BuildConfig) ProjectIDResolver {
	return func() (string, bool) {
		if bc == nil || bc.Updates.URL == "" {
			return "", false
		}
		m := updatesURLPattern.FindStringSubmatch(bc.Updates.URL)
		if m == nil {
			return "", false
		}
		if _, err := uuid.Parse(m[1]); err != nil {
			return "", false
		}
		return m[1], true
	}
}

func Constant(id string) ProjectIDResolver {
	return func() (string, bool) { return id, id != "" }
}

// FirstProjectID returns the first identifier any resolver produces.
func FirstProjectID(resolvers ...ProjectIDResolver) string {
	for _, r := range resolvers {
		if id, ok := r(); ok {
			return id
		}
	}
	return ""
}

// ResolveProjectID walks env, EAS build config, generic extra config, the
// updates URL and finally FallbackProjectID.
func ResolveProjectID(bc *BuildConfig) string {
	return FirstProjectID(
		FromEnv(os.LookupEnv, "EXPO_PUBLIC_PROJECT_ID", "EAS_PROJECT_ID"),
		FromEASConfig(bc),
		FromExtraConfig(bc),
		FromUpdatesURL(bc),
		Constant(FallbackProjectID),
	)
}

// ProjectIDFromBuildConfig resolves the identifier with the build config at
// path, if any. An unreadable file only drops the build-config steps.
func ProjectIDFromBuildConfig(path string) string {
	var bc *BuildConfig
	if path != "" {
		loaded, err := LoadBuildConfig(path)
		if err != nil {
			zap.S().Warnw("ignoring build config", "path", path, "error", err)
		} else {
			bc = loaded
		}
	}
	return ResolveProjectID(bc)
}
