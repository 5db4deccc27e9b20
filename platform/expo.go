package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultExpoBaseURL = "https://exp.host/--/api/v2"

// ExpoClient talks to the Expo push API: exchanging native device tokens for
// Expo push tokens and sending push messages.
type ExpoClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewExpoClient() *ExpoClient {
	return &ExpoClient{
		BaseURL:    DefaultExpoBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type ExchangeRequest struct {
	DeviceID    string `json:"deviceId"`
	ProjectID   string `json:"projectId"`
	AppID       string `json:"appId"`
	DeviceToken string `json:"deviceToken"`
	Type        string `json:"type"`
	Development bool   `json:"development,omitempty"`
}

type expoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type exchangeResponse struct {
	Data struct {
		ExpoPushToken string `json:"expoPushToken"`
	} `json:"data"`
	Errors []expoError `json:"errors"`
}

// ExchangeToken returns the Expo push token for a native FCM/APNs token.
func (c *ExpoClient) ExchangeToken(ctx context.Context, req ExchangeRequest) (string, error) {
	var resp exchangeResponse
	if err := c.post(ctx, "/push/getExpoPushToken", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("expo token exchange: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if resp.Data.ExpoPushToken == "" {
		return "", fmt.Errorf("expo token exchange: empty token in response")
	}
	return resp.Data.ExpoPushToken, nil
}

type ExpoMessage struct {
	To       string            `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

// ExpoTicket is the per-message send result. Details.Error is
// "DeviceNotRegistered" when the token should no longer be used.
type ExpoTicket struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

func (t ExpoTicket) DeviceNotRegistered() bool {
	return t.Status == "error" && t.Details.Error == "DeviceNotRegistered"
}

type sendResponse struct {
	Data   []ExpoTicket `json:"data"`
	Errors []expoError  `json:"errors"`
}

// Send pushes messages and returns one ticket per message, in order.
func (c *ExpoClient) Send(ctx context.Context, messages []ExpoMessage) ([]ExpoTicket, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	var resp sendResponse
	if err := c.post(ctx, "/push/send", messages, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("expo push: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Data) != len(messages) {
		return nil, fmt.Errorf("expo push: got %d tickets for %d messages", len(resp.Data), len(messages))
	}
	return resp.Data, nil
}

func (c *ExpoClient) post(ctx context.Context, path string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal Expo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("expo request %s: %w", path, err)
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo API returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("decode expo response: %w", err)
	}
	return nil
}
