package repository

import (
	"context"

	"github.com/awsl-project/billcast/internal/domain"
)

// RawSource supplies the four raw billing tables. The caller opens it, owns it
// and closes it.
type RawSource interface {
	LoadRawTables(ctx context.Context) (*domain.RawTables, error)
	// Describe identifies the source without credentials; it keys caches.
	Describe() string
	Close() error
}

// RawSink stores raw billing tables, used to import flat files into a database.
type RawSink interface {
	EnsureRawTables(ctx context.Context, tables *domain.RawTables) error
	ImportRawTables(ctx context.Context, tables *domain.RawTables) error
}

type TrainingRunRepository interface {
	Create(run *domain.TrainingRun) error
	GetByID(id string) (*domain.TrainingRun, error)
	// List returns the newest runs first.
	List(limit int) ([]*domain.TrainingRun, error)
}
