// Package storage provides the named-key byte store that holds the
// serialized record collections, with memory, file, Redis and PostgreSQL
// backends behind one interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/config"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/database"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
)

// ErrKeyNotFound is returned by Get when no value is stored under the key
var ErrKeyNotFound = errors.New("storage: key not found")

// KeyValueStore is a get/set/remove store over named keys
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Backend is a KeyValueStore owning external resources
type Backend interface {
	KeyValueStore
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the backend selected by cfg.Storage.Backend
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.Storage.Dir)
	case config.BackendRedis:
		return NewRedisStoreFromConfig(ctx, &cfg.Redis, cfg.Storage.KeyPrefix)
	case config.BackendPostgres:
		db, err := database.NewConnection(ctx, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(db, cfg.Database.Table)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := db.CreateKeyValueSchema(ctx, cfg.Database.Table); err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
}

// Recorder receives per-operation measurements
type Recorder interface {
	RecordStorageOperation(backend, operation string, duration time.Duration, err error)
}

// Instrumented decorates a Backend with logging and metrics
type Instrumented struct {
	Backend
	log      *logger.Logger
	recorder Recorder
}

// NewInstrumented wraps b; recorder may be nil
func NewInstrumented(b Backend, log *logger.Logger, recorder Recorder) *Instrumented {
	return &Instrumented{Backend: b, log: log, recorder: recorder}
}

func (s *Instrumented) observe(ctx context.Context, op, key string, start time.Time, err error) {
	if errors.Is(err, ErrKeyNotFound) {
		err = nil
	}
	d := time.Since(start)
	if s.log != nil {
		s.log.StorageOperation(ctx, s.Backend.Name(), op, key, d.Milliseconds(), err)
	}
	if s.recorder != nil {
		s.recorder.RecordStorageOperation(s.Backend.Name(), op, d, err)
	}
}

// Get implements KeyValueStore
func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := s.Backend.Get(ctx, key)
	s.observe(ctx, "get", key, start, err)
	return v, err
}

// Set implements KeyValueStore
func (s *Instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.Backend.Set(ctx, key, value)
	s.observe(ctx, "set", key, start, err)
	return err
}

// Remove implements KeyValueStore
func (s *Instrumented) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Backend.Remove(ctx, key)
	s.observe(ctx, "remove", key, start, err)
	return err
}
