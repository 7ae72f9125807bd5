// Package blob stores opaque documents such as daily inventory snapshots
// and SKU reference photos.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value object store. Put overwrites existing keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Drivers.
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

// Config selects and configures a Store.
type Config struct {
	Driver string
	// Dir is the root directory of the fs driver.
	Dir string

	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open returns the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFS:
		return NewFS(cfg.Dir)
	case DriverS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
