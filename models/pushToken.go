package models

import "time"

// Device types accepted for a push token row
const (
	DeviceTypeIOS     = "ios"
	DeviceTypeAndroid = "android"
)

// PushToken is a row of user_push_tokens. At most one row exists per
// (user_id, token).
type PushToken struct {
	ID          string    `json:"id" db:"id" goqu:"skipinsert"`
	UserID      string    `json:"userId" db:"user_id"`
	Token       string    `json:"token" db:"token"`
	DeviceType  string    `json:"deviceType" db:"device_type"`
	SignedIn    bool      `json:"signedIn" db:"signed_in"`
	Active      bool      `json:"active" db:"active"`
	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`
}

type PushTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceType string `json:"deviceType" binding:"required,oneof=ios android"`
}

type PushTokenSignOutRequest struct {
	Token string `json:"token" binding:"required"`
}

// LocalTokenRecord mirrors the remote row for the current device only.
type LocalTokenRecord struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"tokenId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationState is the retry bookkeeping persisted across restarts.
type RegistrationState struct {
	LastAttemptTime time.Time `json:"lastAttemptTime"`
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"lastError,omitempty"`
	Registered      bool      `json:"registered"`
}

// VerificationResult is what the verifier reports for a user's stored token.
// SignedIn is nil when the remote store could not be consulted.
type VerificationResult struct {
	IsValid  bool   `json:"isValid"`
	TokenID  string `json:"tokenId,omitempty"`
	Token    string `json:"token,omitempty"`
	SignedIn *bool  `json:"signedIn,omitempty"`
}
