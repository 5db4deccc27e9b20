package pushtoken

import (
	"fmt"
	"os"

	"github.com/CarMarket/pushsync/config"
	"github.com/CarMarket/pushsync/platform"
	"github.com/CarMarket/pushsync/realtime"
	"github.com/CarMarket/pushsync/securestore"
	"github.com/CarMarket/pushsync/tokentable"
)

// Deps are the collaborators an Engine is built from. Clock defaults to the
// wall clock; Network, Notifications, Realtime and Navigator are optional.
// An empty ProjectID is resolved from the environment and BUILD_CONFIG_PATH.
type Deps struct {
	Platform      platform.Service
	Store         securestore.Store
	Table         tokentable.Table
	Notifications tokentable.Notifications
	Realtime      realtime.Subscriber
	Network       Connectivity
	Navigator     Navigator
	Clock         Clock
	Config        config.Config
	ProjectID     string
}

// Engine holds one instance of every component sharing the same session,
// diagnostics and storage.
type Engine struct {
	Session      *Session
	Diagnostics  *Diagnostics
	Tokens       *securestore.TokenStore
	Verifier     *Verifier
	Registrar    *Registrar
	Controller   *Controller
	Orchestrator *Orchestrator
}

func NewEngine(d Deps) *Engine {
	clock := d.Clock
	if clock == nil {
		clock = realClock{}
	}
	projectID := d.ProjectID
	if projectID == "" {
		projectID = config.ProjectIDFromBuildConfig(os.Getenv("BUILD_CONFIG_PATH"))
	}

	session := &Session{}
	diag := NewDiagnostics(DefaultDiagnosticsSize, clock.Now)
	tokens := securestore.NewTokenStore(d.Store)
	verifier := NewVerifier(tokens, d.Table, clock, d.Config, diag)
	registrar := NewRegistrar(d.Platform, tokens, d.Table, verifier, session, clock, d.Config, diag, projectID)
	controller := NewController(registrar, tokens, session, d.Network, clock, d.Config, diag)

	orchestrator := NewOrchestrator(OrchestratorDeps{
		Platform:      d.Platform,
		Verifier:      verifier,
		Controller:    controller,
		Tokens:        tokens,
		Table:         d.Table,
		Notifications: d.Notifications,
		Realtime:      d.Realtime,
		Navigator:     d.Navigator,
		Session:       session,
		Clock:         clock,
		Config:        d.Config,
		Diagnostics:   diag,
	})

	return &Engine{
		Session:      session,
		Diagnostics:  diag,
		Tokens:       tokens,
		Verifier:     verifier,
		Registrar:    registrar,
		Controller:   controller,
		Orchestrator: orchestrator,
	}
}

// NewDeviceEngine builds an Engine configured from the environment: PUSH_*
// tunables and an encrypted file store under SECURE_STORE_DIR keyed by
// SECURE_STORE_SECRET. d supplies the platform and remote collaborators;
// its Config and Store are replaced.
func NewDeviceEngine(d Deps) (*Engine, error) {
	cfg := config.Load()
	store, err := securestore.NewFileStore(cfg.SecureStoreDir, []byte(cfg.SecureStoreSecret), []byte(cfg.SecureStoreSalt))
	if err != nil {
		return nil, fmt.Errorf("open secure store: %w", err)
	}

	d.Config = cfg
	d.Store = store
	return NewEngine(d), nil
}
