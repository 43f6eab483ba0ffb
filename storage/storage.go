// Package storage provides the snapshot backends the stores persist their
// collections through. Every backend maps a fixed key onto one serialized
// blob; Load returns nil data and a nil error for keys never saved.
package storage

import (
	"context"
	"fmt"
)

// Backend persists whole-collection snapshots under fixed keys.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver   string
	Path     string // directory for the file driver
	DSN      string // database file for the sqlite driver
	RedisURL string
	Prefix   string // key prefix for the redis driver
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverFile:
		return NewFile(opts.Path)
	case DriverSQLite:
		return NewSQLite(ctx, opts.DSN)
	case DriverRedis:
		return NewRedis(ctx, opts.RedisURL, opts.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
