package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/continuity/internal/narrative"
)

var (
	// ErrInvalidUniverseID is returned for an empty universe id.
	ErrInvalidUniverseID = errors.New("universe id must not be empty")
	// ErrNotFound is returned by a backend holding nothing for an id.
	ErrNotFound = errors.New("universe not found")
	// ErrVersioningUnsupported is returned by history operations on a backend without history.
	ErrVersioningUnsupported = errors.New("backend does not keep version history")
	// ErrUnknownVersion is returned when a version id does not belong to the universe.
	ErrUnknownVersion = errors.New("unknown universe version")
)

// Backend persists the current state of each universe.
type Backend interface {
	Load(ctx context.Context, id string) (*narrative.NarrativeUniverse, error)
	Save(ctx context.Context, u *narrative.NarrativeUniverse) error
	// IDs lists the ids of every stored universe in ascending order.
	IDs(ctx context.Context) ([]string, error)
	Close() error
}

// Version describes one persisted state of a universe.
type Version struct {
	ID         string    `json:"id"`
	UniverseID string    `json:"universe_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Revision   uint64    `json:"revision"`
	CreatedAt  time.Time `json:"created_at"`
	Active     bool      `json:"active"`
}

// VersionedBackend is a Backend that keeps every saved state.
type VersionedBackend interface {
	Backend
	Versions(ctx context.Context, id string, limit int) ([]Version, error)
	LoadVersion(ctx context.Context, id, versionID string) (*narrative.NarrativeUniverse, error)
}

func encode(u *narrative.NarrativeUniverse) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encoding universe %s: %w", u.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*narrative.NarrativeUniverse, error) {
	var u narrative.NarrativeUniverse
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decoding universe: %w", err)
	}
	u.Normalize()
	return &u, nil
}
