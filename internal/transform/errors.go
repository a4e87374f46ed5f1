package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// PayloadRef identifies a raw payload without carrying it.
type PayloadRef struct {
	Platform   models.Platform
	AccountRef string
	Kind       string // "profile" or "post"
	Digest     string // hex sha256 of the raw bytes
	Size       int
}

func refOf(platform models.Platform, accountRef, kind string, raw json.RawMessage) PayloadRef {
	sum := sha256.Sum256(raw)
	return PayloadRef{
		Platform:   platform,
		AccountRef: accountRef,
		Kind:       kind,
		Digest:     hex.EncodeToString(sum[:]),
		Size:       len(raw),
	}
}

// LogValues returns the ref as key/value pairs for a structured logger.
func (r PayloadRef) LogValues() []any {
	return []any{"platform", r.Platform, "account", r.AccountRef, "payload", r.Kind, "digest", r.Digest, "size", r.Size}
}

// InvariantError reports a payload the transformer refused.
type InvariantError struct {
	Ref    PayloadRef
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s %s payload %.12s: %s", e.Ref.Platform, e.Ref.Kind, e.Ref.Digest, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return shared.ErrTransformInvariant
}

func violation(ref PayloadRef, format string, args ...any) error {
	reason := fmt.Sprintf(format, args...)
	return shared.NewTaskError(shared.KindTransformInvariant, "malformed "+ref.Kind+" payload: "+reason,
		&InvariantError{Ref: ref, Reason: reason})
}
