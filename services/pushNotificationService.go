package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/tokentable"
	"go.uber.org/zap"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var ErrNoDeliverableTokens = errors.New("no deliverable push tokens")

const sendTimeout = 30 * time.Second

type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type expoSender interface {
	Send(ctx context.Context, messages []platform.ExpoMessage) ([]platform.ExpoTicket, error)
}

type PushNotificationService struct {
	fcmClient fcmSender
	expo      expoSender
	tokens    tokentable.Table
}

type NotificationPayload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    string            `json:"badge,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

var pushService *PushNotificationService

func NewPushNotificationService(fcm fcmSender, expo expoSender, tokens tokentable.Table) *PushNotificationService {
	return &PushNotificationService{fcmClient: fcm, expo: expo, tokens: tokens}
}

// InitPushNotificationService sets up Expo delivery and, when Firebase
// credentials are available, FCM delivery for native tokens.
func InitPushNotificationService(tokens tokentable.Table) {
	pushService = NewPushNotificationService(nil, platform.NewExpoClient(), tokens)

	serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")

	var app *firebase.App
	var err error

	if serviceAccountPath != "" {
		opt := option.WithCredentialsFile(serviceAccountPath)
		app, err = firebase.NewApp(context.Background(), nil, opt)
		if err != nil {
			zap.S().Errorw("failed to initialize firebase app with service account", "error", err)
			return
		}
		zap.S().Infow("firebase initialized with service account file")
	} else {
		app, err = firebase.NewApp(context.Background(), nil)
		if err != nil {
			zap.S().Errorw("failed to initialize firebase app with application default credentials", "error", err)
			return
		}
		zap.S().Infow("firebase initialized with application default credentials")
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		zap.S().Errorw("failed to get firebase messaging client", "error", err)
		return
	}
	pushService.fcmClient = client

	zap.S().Infow("push notification service initialized")
}

func GetPushNotificationService() *PushNotificationService {
	return pushService
}

// SetPushNotificationService replaces the process-wide service; nil disables
// push delivery.
func SetPushNotificationService(s *PushNotificationService) {
	pushService = s
}

// SendNotificationToUser delivers payload to every active, signed-in token
// of the user. Tokens the provider reports as unregistered are deactivated.
func (s *PushNotificationService) SendNotificationToUser(ctx context.Context, userID string, payload NotificationPayload) error {
	tokens, err := s.tokens.ListDeliverable(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get push tokens for user %s: %w", userID, err)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNoDeliverableTokens)
	}

	var expoTokens []models.PushToken
	for _, token := range tokens {
		if platform.ValidToken(token.Token) {
			expoTokens = append(expoTokens, token)
			continue
		}
		if err := s.sendFCM(ctx, token, payload); err != nil {
			zap.S().Warnw("failed to send fcm notification", "userId", userID, "token", platform.Redact(token.Token), "error", err)
		}
	}

	if len(expoTokens) > 0 {
		if err := s.sendExpo(ctx, expoTokens, payload); err != nil {
			zap.S().Warnw("failed to send expo notifications", "userId", userID, "error", err)
		}
	}

	return nil
}

func (s *PushNotificationService) SendNotificationToUsers(ctx context.Context, userIDs []string, payload NotificationPayload) error {
	var failed int

	for _, userID := range userIDs {
		err := s.SendNotificationToUser(ctx, userID, payload)
		if err != nil {
			failed++
			zap.S().Warnw("failed to send notification to user", "userId", userID, "error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to send notifications to %d users", failed)
	}
	return nil
}

func (s *PushNotificationService) sendFCM(ctx context.Context, pushToken models.PushToken, payload NotificationPayload) error {
	if s.fcmClient == nil {
		return fmt.Errorf("FCM client not initialized")
	}

	message := &messaging.Message{
		Token: pushToken.Token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
	}

	if pushToken.DeviceType == models.DeviceTypeIOS {
		message.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: payload.Title,
						Body:  payload.Body,
					},
					Sound: payload.Sound,
				},
			},
		}
		if badge, err := strconv.Atoi(payload.Badge); err == nil {
			message.APNS.Payload.Aps.Badge = &badge
		}
		if payload.Priority == "high" {
			message.APNS.Headers = map[string]string{"apns-priority": "10"}
		}
	} else {
		message.Android = &messaging.AndroidConfig{
			Priority: "normal",
			Notification: &messaging.AndroidNotification{
				Title: payload.Title,
				Body:  payload.Body,
				Sound: payload.Sound,
			},
		}
		if payload.Priority == "high" {
			message.Android.Priority = "high"
		}
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	id, err := s.fcmClient.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) {
			s.deactivate(ctx, pushToken.Token)
		}
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	zap.S().Debugw("sent fcm notification", "messageId", id)
	return nil
}

func (s *PushNotificationService) sendExpo(ctx context.Context, tokens []models.PushToken, payload NotificationPayload) error {
	if s.expo == nil {
		return fmt.Errorf("Expo client not initialized")
	}

	var badge *int
	if n, err := strconv.Atoi(payload.Badge); err == nil {
		badge = &n
	}

	messages := make([]platform.ExpoMessage, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, platform.ExpoMessage{
			To:       t.Token,
			Title:    payload.Title,
			Body:     payload.Body,
			Data:     payload.Data,
			Sound:    payload.Sound,
			Badge:    badge,
			Priority: payload.Priority,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	tickets, err := s.expo.Send(ctx, messages)
	if err != nil {
		return err
	}

	for i, ticket := range tickets {
		if i >= len(messages) {
			break
		}
		switch {
		case ticket.DeviceNotRegistered():
			s.deactivate(ctx, messages[i].To)
		case ticket.Status == "error":
			zap.S().Warnw("expo rejected notification", "token", platform.Redact(messages[i].To), "message", ticket.Message)
		}
	}
	return nil
}

func (s *PushNotificationService) deactivate(ctx context.Context, token string) {
	zap.S().Infow("deactivating unregistered push token", "token", platform.Redact(token))
	if err := s.tokens.DeactivateToken(ctx, token); err != nil {
		zap.S().Errorw("failed to deactivate push token", "token", platform.Redact(token), "error", err)
	}
}
