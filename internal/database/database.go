package database

import (
	"context"
	"fmt"
	"log/slog"

	"cchat/internal/logger"
)

// Connect opens the store for databaseURL. An empty URL selects the
// in-memory store.
func Connect(ctx context.Context, databaseURL string, l *slog.Logger) (Store, error) {
	l = logger.Or(l)
	if databaseURL == "" {
		l.Warn("DATABASE_URL not set, using in-memory store")
		return NewMemoryStore(), nil
	}

	s, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	l.Info("database connected")
	return s, nil
}
