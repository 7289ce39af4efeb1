// Package store persists entities, discovered artifacts and their associations.
package store

import (
	"context"
	"errors"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
)

// ErrInvalid is returned for writes missing a required identifier.
var ErrInvalid = errors.New("invalid record")

// Gateway is the persistence surface the batch runner needs.
type Gateway interface {
	// EntitiesNeedingDiscovery returns up to limit entities that have no
	// association with an artifact from catalog. Entities never attempted for
	// catalog come first, then the least recently attempted.
	EntitiesNeedingDiscovery(ctx context.Context, catalog string, limit int) ([]artifact.Entity, error)
	// UpsertArtifact stores c keyed by its qualified ID and returns that ID.
	UpsertArtifact(ctx context.Context, c artifact.Candidate) (string, error)
	// UpsertAssociation stores a keyed by (entity, artifact) and reports whether
	// a new row was created. A primary request is honored only when the entity
	// has no primary association yet; an existing primary is never demoted.
	UpsertAssociation(ctx context.Context, a artifact.Association) (created bool, err error)
	// RecordAttempt notes that discovery ran for the entity against catalog.
	RecordAttempt(ctx context.Context, entityID, catalog string) error
}

// Store is a Gateway that can also be seeded and inspected.
type Store interface {
	Gateway
	AddEntity(ctx context.Context, e artifact.Entity) (artifact.Entity, error)
	Associations(ctx context.Context, entityID string) ([]artifact.Association, error)
	Close() error
}
