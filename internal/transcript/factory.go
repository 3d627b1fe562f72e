package transcript

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when databaseURL is set, otherwise
// an in-memory one. Either way turns are redacted before they are saved.
func NewStore(ctx context.Context, databaseURL string) (Store, string, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return WithRedaction(NewInMemoryStore(0)), "memory", nil
	}
	pg, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, "", err
	}
	return WithRedaction(pg), "postgres", nil
}
