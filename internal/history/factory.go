package history

import (
	"context"
	"strings"
)

// NewArchive picks the Postgres archive when a database URL is configured
// and falls back to the in-memory archive otherwise.
func NewArchive(ctx context.Context, databaseURL string) (Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryArchive(), nil
	}
	return NewPostgresArchive(ctx, databaseURL)
}
