// Package platform describes the device push notification service the
// token engine consumes, and provides implementations of it.
package platform

import (
	"context"
	"time"
)

type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Notification is an inbound notification as delivered to the app.
type Notification struct {
	ID    string
	Title string
	Body  string
	Data  map[string]string
	Date  time.Time
}

// Response is a user interaction (tap or action) with a notification.
type Response struct {
	Notification     Notification
	ActionIdentifier string
}

type Subscription interface {
	Remove()
}

// Service is the platform notification service.
type Service interface {
	IsDevice() bool
	GetPermissions(ctx context.Context) (PermissionStatus, error)
	RequestPermissions(ctx context.Context) (PermissionStatus, error)
	GetToken(ctx context.Context, projectID string) (string, error)
	SetBadgeCount(ctx context.Context, n int) error

	AddTokenRefreshListener(fn func(token string)) Subscription
	AddNotificationReceivedListener(fn func(Notification)) Subscription
	AddNotificationResponseListener(fn func(Response)) Subscription
}
