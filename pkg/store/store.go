package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// ErrNotFound is returned when nothing has been persisted yet.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract shared by the agent and the server.
type Store interface {
	// LoadCurrent returns the most recently written snapshot.
	LoadCurrent(ctx context.Context) (*types.Snapshot, error)
	// LoadHistory returns the history window, oldest first. An empty store
	// returns an empty window and no error.
	LoadHistory(ctx context.Context) (types.History, error)
	// WriteCurrent replaces the current snapshot.
	WriteCurrent(ctx context.Context, s *types.Snapshot) error
	// AppendHistory appends s and trims the window to the newest limit entries.
	AppendHistory(ctx context.Context, s *types.Snapshot, limit int) error
	Close() error
}

// Locker is implemented by backends that can coordinate across processes.
type Locker interface {
	// TryLock acquires key for ttl. It returns false if another holder owns it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Backend names.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend string      `yaml:"backend" default:"file" validate:"oneof=file redis"`
	File    FileConfig  `yaml:"file"`
	Redis   RedisConfig `yaml:"redis"`
}

// FileConfig configures FileStore.
type FileConfig struct {
	Dir         string `yaml:"dir" default:"."`
	CurrentFile string `yaml:"current_file" default:"data.json"`
	HistoryFile string `yaml:"history_file" default:"historical_data.json"`
}

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr        string        `yaml:"addr" default:"localhost:6379"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix" default:"crashdetector"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`

	// Password is resolved from PasswordEnv at load time.
	Password string `yaml:"-"`
}

// Open constructs the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.File), nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
