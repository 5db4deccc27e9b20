package platform

import (
	"context"
	"fmt"
)

// NativeSource is the OS-level notification bridge: permissions, the raw
// FCM/APNs device token and the badge.
type NativeSource interface {
	IsDevice() bool
	PermissionStatus(ctx context.Context) (PermissionStatus, error)
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	DeviceToken(ctx context.Context) (string, error)
	SetBadgeCount(ctx context.Context, n int) error
}

type TokenExchanger interface {
	ExchangeToken(ctx context.Context, req ExchangeRequest) (string, error)
}

// NativeService implements Service on top of a NativeSource, exchanging the
// native token for an Expo push token. The bridge feeds inbound events in
// through Deliver, Respond and RefreshToken.
type NativeService struct {
	source     NativeSource
	exchanger  TokenExchanger
	deviceID   string
	appID      string
	deviceType string

	refresh   listenerSet[string]
	received  listenerSet[Notification]
	responses listenerSet[Response]
}

func NewNativeService(source NativeSource, exchanger TokenExchanger, deviceID, appID, deviceType string) *NativeService {
	return &NativeService{
		source:     source,
		exchanger:  exchanger,
		deviceID:   deviceID,
		appID:      appID,
		deviceType: deviceType,
	}
}

func (s *NativeService) IsDevice() bool { return s.source.IsDevice() }

func (s *NativeService) GetPermissions(ctx context.Context) (PermissionStatus, error) {
	return s.source.PermissionStatus(ctx)
}

func (s *NativeService) RequestPermissions(ctx context.Context) (PermissionStatus, error) {
	return s.source.RequestPermission(ctx)
}

func (s *NativeService) GetToken(ctx context.Context, projectID string) (string, error) {
	deviceToken, err := s.source.DeviceToken(ctx)
	if err != nil {
		return "", fmt.Errorf("native device token: %w", err)
	}

	tokenType := "fcm"
	if s.deviceType == "ios" {
		tokenType = "apns"
	}

	return s.exchanger.ExchangeToken(ctx, ExchangeRequest{
		DeviceID:    s.deviceID,
		ProjectID:   projectID,
		AppID:       s.appID,
		DeviceToken: deviceToken,
		Type:        tokenType,
	})
}

func (s *NativeService) SetBadgeCount(ctx context.Context, n int) error {
	return s.source.SetBadgeCount(ctx, n)
}

func (s *NativeService) AddTokenRefreshListener(fn func(string)) Subscription {
	return s.refresh.add(fn)
}

func (s *NativeService) AddNotificationReceivedListener(fn func(Notification)) Subscription {
	return s.received.add(fn)
}

func (s *NativeService) AddNotificationResponseListener(fn func(Response)) Subscription {
	return s.responses.add(fn)
}

func (s *NativeService) Deliver(n Notification) { s.received.emit(n) }

func (s *NativeService) Respond(r Response) { s.responses.emit(r) }

func (s *NativeService) RefreshToken(token string) { s.refresh.emit(token) }
