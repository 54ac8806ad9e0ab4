package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/probeflow/probeflow/pkg/persistence"
	"github.com/probeflow/probeflow/pkg/persistence/file"
	"github.com/probeflow/probeflow/pkg/persistence/postgresql"
)

// NewPersistence creates a storage backend from the database URL scheme.
// postgres:// URLs get the PostgreSQL backend; anything else is treated as
// a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
