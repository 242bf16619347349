// Package database owns the lifecycle of the storage backends shared by all
// requests.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cuongbtq/jobpipe/shared/mongo"
	"github.com/cuongbtq/jobpipe/shared/postgresql"
	"github.com/cuongbtq/jobpipe/shared/redis"
)

// Backend names.
const (
	Postgres = "postgres"
	Redis    = "redis"
	Mongo    = "mongo"
)

// Handle is a live connection owned by the Manager.
type Handle interface {
	Close(ctx context.Context) error
}

// Backend is one configurable store.
type Backend interface {
	Name() string
	Enabled() bool
	Connect(ctx context.Context) (Handle, error)
}

// Connections is a snapshot of the live handles.
type Connections struct {
	handles map[string]Handle
}

// Get returns the live handle registered under name.
func (c Connections) Get(name string) (Handle, bool) {
	h, ok := c.handles[name]
	return h, ok
}

// Names returns the names of the live backends, sorted.
func (c Connections) Names() []string {
	names := make([]string, 0, len(c.handles))
	for name := range c.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Postgres returns the PostgreSQL client, or nil when it is not connected.
func (c Connections) Postgres() *postgresql.Client {
	h, _ := c.handles[Postgres].(*postgresql.Client)
	return h
}

// Redis returns the Redis client, or nil when it is not connected.
func (c Connections) Redis() *redis.Client {
	h, _ := c.handles[Redis].(*redis.Client)
	return h
}

// Mongo returns the MongoDB client, or nil when it is not connected.
func (c Connections) Mongo() *mongo.Client {
	h, _ := c.handles[Mongo].(*mongo.Client)
	return h
}

type live struct {
	name   string
	handle Handle
}

// Manager connects the enabled backends at startup and closes them at
// shutdown.
type Manager struct {
	backends []Backend
	logger   *slog.Logger

	mu   sync.Mutex
	live []live
	done bool
}

// NewManager creates a manager for the given backends. Backends are connected
// in order and closed in reverse order.
func NewManager(logger *slog.Logger, backends ...Backend) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backends: backends, logger: logger}
}

// Initialize connects every enabled backend. Any failure closes what was
// already connected and is returned; the service must not start.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.live) > 0 {
		return nil
	}
	m.done = false

	for _, b := range m.backends {
		if !b.Enabled() {
			m.logger.Debug("Skipping disabled database backend", slog.String("backend", b.Name()))
			continue
		}

		h, err := b.Connect(ctx)
		if err != nil {
			m.logger.Error("Failed to initialize database backend",
				slog.String("backend", b.Name()),
				slog.Any("error", err),
			)
			m.closeLocked(ctx)
			return fmt.Errorf("failed to initialize %s: %w", b.Name(), err)
		}
		m.live = append(m.live, live{name: b.Name(), handle: h})
	}

	m.logger.Info("Database backends initialized", slog.Any("backends", m.names()))
	return nil
}

// Shutdown closes every live backend. It keeps going after a failure, returns
// the joined errors and is a no-op after the first call.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return nil
	}
	m.done = true

	err := m.closeLocked(ctx)
	if err != nil {
		m.logger.Error("Database shutdown completed with errors", slog.Any("error", err))
		return err
	}
	m.logger.Info("Database backends closed")
	return nil
}

// Connections returns the live handles.
func (m *Manager) Connections() Connections {
	m.mu.Lock()
	defer m.mu.Unlock()

	handles := make(map[string]Handle, len(m.live))
	for _, l := range m.live {
		handles[l.name] = l.handle
	}
	return Connections{handles: handles}
}

func (m *Manager) closeLocked(ctx context.Context) error {
	var errs []error
	for i := len(m.live) - 1; i >= 0; i-- {
		l := m.live[i]
		if err := l.handle.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", l.name, err))
		}
	}
	m.live = nil
	return errors.Join(errs...)
}

func (m *Manager) names() []string {
	names := make([]string, len(m.live))
	for i, l := range m.live {
		names[i] = l.name
	}
	return names
}
