package stash

import (
	"context"
	"fmt"
)

// Client is the main entry point. It owns the local store, the repository,
// and the sync orchestrator; the remote storage and auth provider are
// injected so callers (and tests) can substitute implementations.
type Client struct {
	config  Config
	store   *Store
	repo    *Repository
	engine  *Orchestrator
	storage SpreadsheetStorage
	log     *DebugLogger
}

// New creates a Stash client. storage and auth may be nil for offline-only
// use; Sync then returns ErrOffline.
func New(cfg Config, storage SpreadsheetStorage, auth AuthProvider) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	st, err := NewStore(cfg.DBPath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	repo := NewRepository(st, log)

	return &Client{
		config:  cfg,
		store:   st,
		repo:    repo,
		engine:  NewOrchestrator(repo, storage, auth, log),
		storage: storage,
		log:     log,
	}, nil
}

// Repository returns the local query and mutation layer.
func (c *Client) Repository() *Repository {
	return c.repo
}

// Store returns the underlying local store, for export and import.
func (c *Client) Store() *Store {
	return c.store
}

// Engine returns the sync orchestrator.
func (c *Client) Engine() SyncEngine {
	return c.engine
}

// Sync runs one sync cycle against the remote store.
func (c *Client) Sync(ctx context.Context) error {
	return c.engine.SyncNow(ctx)
}

// Authenticate ensures a usable credential, triggering the external flow
// when none is available.
func (c *Client) Authenticate(ctx context.Context) (AuthResult, error) {
	return c.engine.Authenticate(ctx)
}

// State returns the current sync state.
func (c *Client) State() SyncState {
	return c.engine.State()
}

// Subscribe registers a sync state listener.
func (c *Client) Subscribe(fn StateListener) func() {
	return c.engine.Subscribe(fn)
}

// Stats returns store statistics.
func (c *Client) Stats() (*StoreStats, error) {
	return c.store.Stats()
}

// HealthCheck reports store and remote reachability.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, StoreOK: true}

	if err := c.store.Ping(); err != nil {
		status.StoreOK = false
		status.Healthy = false
		status.Error = err.Error()
		return status
	}

	if c.storage != nil {
		_, err := c.storage.EnsureSpreadsheet(ctx)
		status.RemoteReachable = err == nil
		if err != nil && status.Error == "" {
			status.Error = err.Error()
		}
	}

	return status
}

// Close closes the client.
func (c *Client) Close() error {
	if err := c.log.Close(); err != nil {
		return err
	}
	return c.store.Close()
}
