package pushtoken

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/CarMarket/pushsync/config"
	"github.com/CarMarket/pushsync/models"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/securestore"
	"github.com/CarMarket/pushsync/tokentable"
	"github.com/stretchr/testify/mock"
)

var errRemoteDown = errors.New("remote unavailable")

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that became due, in
// deadline order, outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Pending returns the delays of timers that have neither fired nor stopped.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

// flakyTable fails or stalls selected operations of an underlying table.
type flakyTable struct {
	tokentable.Table

	mu        sync.Mutex
	failWrite bool
	failFind  bool
	stallFind time.Duration
	calls     map[string]int
}

func newFlakyTable(inner tokentable.Table) *flakyTable {
	return &flakyTable{Table: inner, calls: make(map[string]int)}
}

func (f *flakyTable) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *flakyTable) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakyTable) SetFailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrite = fail
}

func (f *flakyTable) writesFail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failWrite
}

func (f *flakyTable) Find(ctx context.Context, userID, token string) (*models.PushToken, error) {
	f.count("find")
	f.mu.Lock()
	stall, fail := f.stallFind, f.failFind
	f.mu.Unlock()
	if stall > 0 {
		select {
		case <-time.After(stall):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errRemoteDown
	}
	return f.Table.Find(ctx, userID, token)
}

func (f *flakyTable) DeactivateOthers(ctx context.Context, userID, deviceType, keepToken string) error {
	f.count("deactivate_others")
	if f.writesFail() {
		return errRemoteDown
	}
	return f.Table.DeactivateOthers(ctx, userID, deviceType, keepToken)
}

func (f *flakyTable) Upsert(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	f.count("upsert")
	if f.writesFail() {
		return nil, errRemoteDown
	}
	return f.Table.Upsert(ctx, row)
}

func (f *flakyTable) UpdateByToken(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	f.count("update_by_token")
	if f.writesFail() {
		return nil, errRemoteDown
	}
	return f.Table.UpdateByToken(ctx, row)
}

func (f *flakyTable) Insert(ctx context.Context, row models.PushToken) (*models.PushToken, error) {
	f.count("insert")
	if f.writesFail() {
		return nil, errRemoteDown
	}
	return f.Table.Insert(ctx, row)
}

func (f *flakyTable) SetSignedIn(ctx context.Context, userID, token string, signedIn bool) error {
	f.count("set_signed_in")
	if f.writesFail() {
		return errRemoteDown
	}
	return f.Table.SetSignedIn(ctx, userID, token, signedIn)
}

type fakeNetwork struct {
	mu        sync.Mutex
	connected bool
}

func (n *fakeNetwork) Connected(ctx context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

func (n *fakeNetwork) Set(connected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = connected
}

type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) Navigate(screen string, params map[string]string) {
	m.Called(screen, params)
}

type MockNotifications struct {
	mock.Mock
}

func (m *MockNotifications) UnreadCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotifications) MarkRead(ctx context.Context, userID, notificationID string) error {
	args := m.Called(ctx, userID, notificationID)
	return args.Error(0)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RemoteTimeout = 50 * time.Millisecond
	cfg.TokenTimeout = 50 * time.Millisecond
	cfg.StepRetries = 1
	cfg.StepRetryDelay = time.Millisecond
	return cfg
}

type harness struct {
	clock   *fakeClock
	sim     *platform.Simulator
	store   *securestore.MemoryStore
	memory  *tokentable.MemoryTable
	table   *flakyTable
	network *fakeNetwork
	cfg     config.Config
	engine  *Engine
}

type harnessOption func(*harness, *Deps)

func withNotifications(n tokentable.Notifications) harnessOption {
	return func(_ *harness, d *Deps) { d.Notifications = n }
}

func withNavigator(n Navigator) harnessOption {
	return func(_ *harness, d *Deps) { d.Navigator = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		clock:   newFakeClock(),
		sim:     platform.NewSimulator(),
		store:   securestore.NewMemoryStore(),
		memory:  tokentable.NewMemoryTable(),
		network: &fakeNetwork{connected: true},
		cfg:     testConfig(),
	}
	h.memory.Now = h.clock.Now
	h.table = newFlakyTable(h.memory)
	h.sim.SetPermission(platform.PermissionGranted, true)

	deps := Deps{
		Platform: h.sim,
		Store:    h.store,
		Table:    h.table,
		Network:  h.network,
		Clock:    h.clock,
		Config:   h.cfg,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.engine = NewEngine(deps)
	return h
}

func (h *harness) localToken(t *testing.T) *models.LocalTokenRecord {
	t.Helper()
	rec, err := h.engine.Tokens.LoadToken(context.Background())
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	return rec
}

func (h *harness) state(t *testing.T) models.RegistrationState {
	t.Helper()
	st, err := h.engine.Tokens.LoadState(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st == nil {
		return models.RegistrationState{}
	}
	return *st
}
