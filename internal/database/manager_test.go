package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/jobpipe/internal/config"
)

type fakeHandle struct {
	name     string
	closeErr error
	log      *[]string
}

func (h *fakeHandle) Close(context.Context) error {
	*h.log = append(*h.log, "close:"+h.name)
	return h.closeErr
}

type fakeBackend struct {
	name       string
	disabled   bool
	connectErr error
	closeErr   error
	log        *[]string
}

func (b *fakeBackend) Name() string  { return b.name }
func (b *fakeBackend) Enabled() bool { return !b.disabled }

func (b *fakeBackend) Connect(context.Context) (Handle, error) {
	*b.log = append(*b.log, "connect:"+b.name)
	if b.connectErr != nil {
		return nil, b.connectErr
	}
	return &fakeHandle{name: b.name, closeErr: b.closeErr, log: b.log}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_Initialize(t *testing.T) {
	t.Run("connects enabled backends in order", func(t *testing.T) {
		var log []string
		m := NewManager(discardLogger(),
			&fakeBackend{name: "a", log: &log},
			&fakeBackend{name: "b", disabled: true, log: &log},
			&fakeBackend{name: "c", log: &log},
		)

		require.NoError(t, m.Initialize(context.Background()))
		assert.Equal(t, []string{"connect:a", "connect:c"}, log)
		assert.Equal(t, []string{"a", "c"}, m.Connections().Names())

		_, ok := m.Connections().Get("b")
		assert.False(t, ok)
	})

	t.Run("is a no-op once connected", func(t *testing.T) {
		var log []string
		m := NewManager(discardLogger(), &fakeBackend{name: "a", log: &log})

		require.NoError(t, m.Initialize(context.Background()))
		require.NoError(t, m.Initialize(context.Background()))
		assert.Equal(t, []string{"connect:a"}, log)
	})

	t.Run("failure closes connected backends", func(t *testing.T) {
		var log []string
		boom := errors.New("connection refused")
		m := NewManager(discardLogger(),
			&fakeBackend{name: "a", log: &log},
			&fakeBackend{name: "b", connectErr: boom, log: &log},
			&fakeBackend{name: "c", log: &log},
		)

		err := m.Initialize(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to initialize b")
		assert.Equal(t, []string{"connect:a", "connect:b", "close:a"}, log)
		assert.Empty(t, m.Connections().Names())
	})
}

func TestManager_Shutdown(t *testing.T) {
	t.Run("closes in reverse order once", func(t *testing.T) {
		var log []string
		m := NewManager(discardLogger(),
			&fakeBackend{name: "a", log: &log},
			&fakeBackend{name: "b", log: &log},
		)
		require.NoError(t, m.Initialize(context.Background()))
		log = nil

		require.NoError(t, m.Shutdown(context.Background()))
		require.NoError(t, m.Shutdown(context.Background()))
		assert.Equal(t, []string{"close:b", "close:a"}, log)
		assert.Empty(t, m.Connections().Names())
	})

	t.Run("continues after a failure", func(t *testing.T) {
		var log []string
		boom := errors.New("close failed")
		m := NewManager(discardLogger(),
			&fakeBackend{name: "a", log: &log},
			&fakeBackend{name: "b", closeErr: boom, log: &log},
		)
		require.NoError(t, m.Initialize(context.Background()))
		log = nil

		err := m.Shutdown(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"close:b", "close:a"}, log)
	})

	t.Run("before initialize", func(t *testing.T) {
		m := NewManager(discardLogger())
		assert.NoError(t, m.Shutdown(context.Background()))
	})
}

func TestConnections_TypedAccessors(t *testing.T) {
	var log []string
	m := NewManager(discardLogger(), &fakeBackend{name: Postgres, log: &log})
	require.NoError(t, m.Initialize(context.Background()))

	conns := m.Connections()
	assert.Nil(t, conns.Postgres())
	assert.Nil(t, conns.Redis())
	assert.Nil(t, conns.Mongo())
	assert.Equal(t, []string{Postgres}, conns.Names())
}

func TestFromConfig(t *testing.T) {
	backends := FromConfig(config.DatabaseConfig{
		Postgres: config.PostgresConfig{Enabled: true},
		Mongo:    config.MongoConfig{Enabled: true},
	}, discardLogger())

	require.Len(t, backends, 3)
	assert.Equal(t, Postgres, backends[0].Name())
	assert.True(t, backends[0].Enabled())
	assert.Equal(t, Redis, backends[1].Name())
	assert.False(t, backends[1].Enabled())
	assert.Equal(t, Mongo, backends[2].Name())
	assert.True(t, backends[2].Enabled())
}
