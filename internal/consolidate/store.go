package consolidate

import (
	"context"
	"errors"

	"github.com/linnemanlabs/skywatch/internal/incident"
)

// ErrConflict is returned by Create when an incident with the same content
// hash already exists. The engine retries the operation as a merge.
var ErrConflict = errors.New("incident with this content hash already exists")

// Store is the persistence boundary for consolidated incidents.
type Store interface {
	Get(ctx context.Context, id string) (*incident.Consolidated, bool, error)
	GetByContentHash(ctx context.Context, hash string) (*incident.Consolidated, bool, error)

	// FindByGroupKey returns all incidents with the given grouping key; the
	// engine applies the sliding time-window check on top.
	FindByGroupKey(ctx context.Context, key string) ([]*incident.Consolidated, error)

	// Create inserts a new incident, returning ErrConflict when the content
	// hash is already taken (uniqueness is enforced here, not in the engine).
	Create(ctx context.Context, inc *incident.Consolidated) error

	Update(ctx context.Context, inc *incident.Consolidated) error

	// List returns the most recently seen incidents, newest first.
	List(ctx context.Context, limit int) ([]*incident.Consolidated, error)
}
