package services

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
)

// Provider fetches raw payloads for an external account.
type Provider interface {
	// Profile returns the raw profile payload for accountRef.
	Profile(ctx context.Context, platform models.Platform, accountRef string) (json.RawMessage, error)

	// Posts starts a posts fetch and returns a cursor over its pages.
	// since, when set, asks the provider to skip older posts.
	Posts(ctx context.Context, platform models.Platform, accountRef string, since *time.Time) (PostCursor, error)
}

// PostCursor pages through the posts of one fetch. It is not restartable.
type PostCursor interface {
	// Next returns the next page of raw posts; done is true once no pages remain.
	Next(ctx context.Context) (items []json.RawMessage, done bool, err error)
}
