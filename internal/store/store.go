// Package store provides the durable storage drivers behind domain.Storage:
// Postgres with pgvector for deployments, embedded SQLite for zero-config
// runs. Both persist the same things: the append-only memory log, the rolling
// summaries, immutable summary snapshots with their embeddings, and notes
// with their vectors.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/minimind-ai/minimind/internal/domain"
)

var ErrNotFound = errors.New("record not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a storage driver.
type Options struct {
	Driver        string
	DatabaseURL   string
	SQLitePath    string
	EmbeddingDims int
}

// Open builds the configured driver and ensures its schema exists.
func Open(ctx context.Context, opts Options) (domain.Storage, error) {
	switch opts.Driver {
	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		return OpenPostgres(ctx, opts.DatabaseURL, opts.EmbeddingDims)
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
