package platform

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Simulator is an in-process Service for development builds and tests. It
// issues a stable Expo-shaped token until Rotate is called.
type Simulator struct {
	mu          sync.Mutex
	device      bool
	permission  PermissionStatus
	grantOnAsk  bool
	token       string
	tokenErr    error
	badge       int
	tokenCalls  int
	lastProject string

	refresh   listenerSet[string]
	received  listenerSet[Notification]
	responses listenerSet[Response]
}

func NewSimulator() *Simulator {
	return &Simulator{
		device:     true,
		permission: PermissionUndetermined,
		grantOnAsk: true,
		token:      newSimulatedToken(),
	}
}

func newSimulatedToken() string {
	return "ExponentPushToken[" + strings.ReplaceAll(uuid.NewString(), "-", "")[:22] + "]"
}

func (s *Simulator) SetDevice(device bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = device
}

// SetPermission fixes the current status and whether asking grants it.
func (s *Simulator) SetPermission(status PermissionStatus, grantOnAsk bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permission = status
	s.grantOnAsk = grantOnAsk
}

// SetToken overrides the issued token, including malformed values.
func (s *Simulator) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Simulator) SetTokenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenErr = err
}

// Rotate issues a new token and notifies refresh listeners.
func (s *Simulator) Rotate() string {
	s.mu.Lock()
	s.token = newSimulatedToken()
	token := s.token
	s.mu.Unlock()

	s.refresh.emit(token)
	return token
}

func (s *Simulator) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Simulator) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

func (s *Simulator) LastProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProject
}

func (s *Simulator) Badge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badge
}

func (s *Simulator) IsDevice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *Simulator) GetPermissions(ctx context.Context) (PermissionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission, nil
}

func (s *Simulator) RequestPermissions(ctx context.Context) (PermissionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission == PermissionUndetermined {
		if s.grantOnAsk {
			s.permission = PermissionGranted
		} else {
			s.permission = PermissionDenied
		}
	}
	return s.permission, nil
}

func (s *Simulator) GetToken(ctx context.Context, projectID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenCalls++
	s.lastProject = projectID
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	return s.token, nil
}

func (s *Simulator) SetBadgeCount(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badge = n
	return nil
}

func (s *Simulator) AddTokenRefreshListener(fn func(string)) Subscription {
	return s.refresh.add(fn)
}

func (s *Simulator) AddNotificationReceivedListener(fn func(Notification)) Subscription {
	return s.received.add(fn)
}

func (s *Simulator) AddNotificationResponseListener(fn func(Response)) Subscription {
	return s.responses.add(fn)
}

func (s *Simulator) Deliver(n Notification) { s.received.emit(n) }

func (s *Simulator) Respond(r Response) { s.responses.emit(r) }

// ListenerCount reports attached received+response listeners.
func (s *Simulator) ListenerCount() int {
	return s.received.len() + s.responses.len()
}
