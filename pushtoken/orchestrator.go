package pushtoken

import (
	"context"
	"errors"
	"sync"

	"github.com/CarMarket/pushsync/config"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/realtime"
	"github.com/CarMarket/pushsync/securestore"
	"github.com/CarMarket/pushsync/tokentable"
	"go.uber.org/zap"
)

type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateInactive   AppState = "inactive"
	AppStateBackground AppState = "background"
)

// Payload keys understood on notification data.
const (
	DataNotificationID = "notificationId"
	DataScreen         = "screen"
)

type Navigator interface {
	Navigate(screen string, params map[string]string)
}

// Orchestrator wires lifecycle, connectivity and auth events to the
// verifier and controller and keeps the unread/permission state the UI
// reads. Handlers never return errors.
type Orchestrator struct {
	platform      platform.Service
	verifier      *Verifier
	controller    *Controller
	tokens        *securestore.TokenStore
	table         tokentable.Table
	notifications tokentable.Notifications
	realtime      realtime.Subscriber
	navigator     Navigator
	session       *Session
	clock         Clock
	cfg           config.Config
	diag          *Diagnostics

	received  *Deduper
	responses *Deduper

	mu          sync.Mutex
	userID      string
	appState    AppState
	unread      int
	permission  platform.PermissionStatus
	subs        []platform.Subscription
	unsubscribe func()
	settle      Timer
}

type OrchestratorDeps struct {
	Platform      platform.Service
	Verifier      *Verifier
	Controller    *Controller
	Tokens        *securestore.TokenStore
	Table         tokentable.Table
	Notifications tokentable.Notifications
	Realtime      realtime.Subscriber
	Navigator     Navigator
	Session       *Session
	Clock         Clock
	Config        config.Config
	Diagnostics   *Diagnostics
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		platform:      d.Platform,
		verifier:      d.Verifier,
		controller:    d.Controller,
		tokens:        d.Tokens,
		table:         d.Table,
		notifications: d.Notifications,
		realtime:      d.Realtime,
		navigator:     d.Navigator,
		session:       d.Session,
		clock:         d.Clock,
		cfg:           d.Config,
		diag:          d.Diagnostics,
		received:      NewDeduper(d.Config.DedupWindow, d.Clock.Now),
		responses:     NewDeduper(d.Config.DedupWindow, d.Clock.Now),
		appState:      AppStateActive,
		permission:    platform.PermissionUndetermined,
	}
}

// Mount attaches listeners for userID and runs the initial verification,
// registering when the stored token is not usable.
func (o *Orchestrator) Mount(ctx context.Context, userID string) {
	o.Unmount()

	o.mu.Lock()
	o.userID = userID
	o.subs = []platform.Subscription{
		o.platform.AddNotificationReceivedListener(o.handleReceived),
		o.platform.AddNotificationResponseListener(o.handleResponse),
		o.platform.AddTokenRefreshListener(o.handleTokenRefresh),
	}
	if o.realtime != nil {
		o.unsubscribe = o.realtime.Subscribe(userID, func(realtime.Event) {
			o.refreshUnread(context.Background())
		})
	}
	o.mu.Unlock()

	o.refreshPermission(ctx)
	o.refreshUnread(ctx)
	o.verifyAndRegister(ctx, userID)
}

// Unmount detaches every listener. Safe to call repeatedly.
func (o *Orchestrator) Unmount() {
	o.mu.Lock()
	subs := o.subs
	unsubscribe := o.unsubscribe
	o.subs = nil
	o.unsubscribe = nil
	o.mu.Unlock()

	for _, s := range subs {
		s.Remove()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

// AppStateChanged acts on transitions into the foreground only.
func (o *Orchestrator) AppStateChanged(ctx context.Context, state AppState) {
	o.mu.Lock()
	prev := o.appState
	o.appState = state
	userID := o.userID
	o.mu.Unlock()

	if state != AppStateActive || prev == AppStateActive || userID == "" {
		return
	}

	if err := o.platform.SetBadgeCount(ctx, 0); err != nil {
		o.diag.Record("lifecycle.reset_badge", err)
	}
	o.refreshPermission(ctx)
	o.refreshUnread(ctx)

	ran, _, err := o.controller.ConsumeForcedRegistration(ctx, userID)
	if ran {
		o.logOutcome("lifecycle.forced_registration", err)
		return
	}
	o.verifyAndRegister(ctx, userID)
}

// NetworkChanged consumes a deferred registration when connectivity returns.
func (o *Orchestrator) NetworkChanged(ctx context.Context, connected bool) {
	userID := o.currentUser()
	if !connected || userID == "" {
		return
	}
	ran, _, err := o.controller.ConsumeForcedRegistration(ctx, userID)
	if ran {
		o.logOutcome("lifecycle.reconnect_registration", err)
	}
}

// SignOut flags the sign-out before any cleanup, marks the remote row
// signed out without deleting it, clears local state and lowers the flag
// after the settling delay.
func (o *Orchestrator) SignOut(ctx context.Context) {
	o.session.BeginSignOut()

	userID := o.currentUser()
	o.Unmount()
	o.controller.Reset(ctx)

	rec, err := o.tokens.LoadToken(ctx)
	if err != nil {
		o.diag.Record("signout.load_token", err)
	}
	if rec != nil && userID != "" {
		_, err := callWithTimeout(ctx, o.cfg.RemoteTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.table.SetSignedIn(ctx, userID, rec.Token, false)
		})
		if err != nil && !errors.Is(err, tokentable.ErrNotFound) {
			o.diag.Record("signout.mark_signed_out", err)
		}
	}

	if err := o.tokens.ClearToken(ctx); err != nil {
		o.diag.Record("signout.clear_token", err)
	}
	if err := o.tokens.ClearState(ctx); err != nil {
		o.diag.Record("signout.clear_state", err)
	}
	o.verifier.Invalidate(userID)

	o.mu.Lock()
	o.userID = ""
	o.unread = 0
	if o.settle != nil {
		o.settle.Stop()
	}
	o.settle = o.clock.AfterFunc(o.cfg.SignOutSettle, o.session.EndSignOut)
	o.mu.Unlock()

	zap.S().Infow("push token signed out", "userId", userID)
}

func (o *Orchestrator) UnreadCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unread
}

func (o *Orchestrator) PermissionStatus() platform.PermissionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.permission
}

func (o *Orchestrator) currentUser() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userID
}

func (o *Orchestrator) verifyAndRegister(ctx context.Context, userID string) {
	res := o.verifier.ForceTokenVerification(ctx, userID)
	if res.IsValid {
		return
	}
	o.controller.MarkUnregistered(ctx)
	_, err := o.controller.Register(ctx, userID, false)
	o.logOutcome("lifecycle.register", err)
}

func (o *Orchestrator) handleReceived(n platform.Notification) {
	if o.received.Seen(n.ID) {
		zap.S().Debugw("dropping duplicate notification", "id", n.ID)
		return
	}

	o.mu.Lock()
	o.unread++
	o.mu.Unlock()
}

func (o *Orchestrator) handleResponse(r platform.Response) {
	n := r.Notification
	if o.responses.Seen(n.ID) {
		zap.S().Debugw("dropping duplicate notification response", "id", n.ID)
		return
	}

	userID := o.currentUser()
	notificationID := n.Data[DataNotificationID]
	if notificationID == "" {
		notificationID = n.ID
	}

	if userID != "" && o.notifications != nil {
		ctx := context.Background()
		_, err := callWithTimeout(ctx, o.cfg.RemoteTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.notifications.MarkRead(ctx, userID, notificationID)
		})
		if err != nil {
			o.diag.Record("response.mark_read", err)
		}
	}

	o.mu.Lock()
	if o.unread > 0 {
		o.unread--
	}
	o.mu.Unlock()

	screen := n.Data[DataScreen]
	if screen == "" || o.navigator == nil {
		return
	}
	params := make(map[string]string, len(n.Data))
	for k, v := range n.Data {
		if k != DataScreen {
			params[k] = v
		}
	}
	o.navigator.Navigate(screen, params)
}

func (o *Orchestrator) handleTokenRefresh(token string) {
	userID := o.currentUser()
	if userID == "" {
		return
	}
	zap.S().Infow("platform rotated push token", "userId", userID, "token", platform.Redact(token))
	_, err := o.controller.Register(context.Background(), userID, true)
	o.logOutcome("lifecycle.token_refresh", err)
}

func (o *Orchestrator) refreshUnread(ctx context.Context) {
	userID := o.currentUser()
	if userID == "" || o.notifications == nil {
		return
	}
	count, err := callWithTimeout(ctx, o.cfg.RemoteTimeout, func(ctx context.Context) (int, error) {
		return o.notifications.UnreadCount(ctx, userID)
	})
	if err != nil {
		o.diag.Record("lifecycle.unread_count", err)
		return
	}

	o.mu.Lock()
	o.unread = count
	o.mu.Unlock()
}

func (o *Orchestrator) refreshPermission(ctx context.Context) {
	status, err := o.platform.GetPermissions(ctx)
	if err != nil {
		o.diag.Record("lifecycle.permissions", err)
		return
	}
	o.mu.Lock()
	o.permission = status
	o.mu.Unlock()
}

func (o *Orchestrator) logOutcome(op string, err error) {
	switch {
	case err == nil, errors.Is(err, ErrSkipped), errors.Is(err, ErrSigningOut):
	case errors.Is(err, ErrPermissionDenied):
		o.mu.Lock()
		o.permission = platform.PermissionDenied
		o.mu.Unlock()
		zap.S().Infow("push notifications disabled: permission not granted")
	default:
		o.diag.Record(op, err)
	}
}
