package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
)

// Memory is an in-process Store.
type Memory struct {
	artifacts    map[string]artifact.Candidate
	associations map[string][]artifact.Association // by entity ID, in creation order
	attempts     map[string]int                    // "catalog\x00entity" -> attempt sequence
	entities     []artifact.Entity
	seq          int
	mu           sync.Mutex
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		artifacts:    make(map[string]artifact.Candidate),
		associations: make(map[string][]artifact.Association),
		attempts:     make(map[string]int),
	}
}

// AddEntity inserts or replaces an entity. An empty ID is assigned a UUID.
func (m *Memory) AddEntity(_ context.Context, e artifact.Entity) (artifact.Entity, error) {
	if strings.TrimSpace(e.Name) == "" {
		return e, fmt.Errorf("entity name: %w", ErrInvalid)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entities {
		if m.entities[i].ID == e.ID {
			m.entities[i] = e
			return e, nil
		}
	}
	m.entities = append(m.entities, e)
	return e, nil
}

// EntitiesNeedingDiscovery implements Gateway.
func (m *Memory) EntitiesNeedingDiscovery(_ context.Context, catalog string, limit int) ([]artifact.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type pending struct {
		e       artifact.Entity
		attempt int
		pos     int
	}
	var todo []pending
	for i, e := range m.entities {
		if m.hasCatalogLocked(e.ID, catalog) {
			continue
		}
		todo = append(todo, pending{e: e, attempt: m.attempts[catalog+"\x00"+e.ID], pos: i})
	}
	slices.SortStableFunc(todo, func(a, b pending) int {
		return a.attempt - b.attempt
	})

	var out []artifact.Entity
	for _, p := range todo {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, p.e)
	}
	return out, nil
}

func (m *Memory) hasCatalogLocked(entityID, catalog string) bool {
	for _, a := range m.associations[entityID] {
		if m.artifacts[a.ArtifactID].Catalog == catalog {
			return true
		}
	}
	return false
}

// UpsertArtifact implements Gateway.
func (m *Memory) UpsertArtifact(_ context.Context, c artifact.Candidate) (string, error) {
	if c.ID == "" {
		return "", fmt.Errorf("artifact id: %w", ErrInvalid)
	}
	c.Tags = slices.Clone(c.Tags)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[c.ID] = c
	return c.ID, nil
}

// UpsertAssociation implements Gateway.
func (m *Memory) UpsertAssociation(_ context.Context, a artifact.Association) (bool, error) {
	if a.EntityID == "" || a.ArtifactID == "" {
		return false, fmt.Errorf("association key: %w", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.artifacts[a.ArtifactID]; !ok {
		return false, fmt.Errorf("artifact %s: %w", a.ArtifactID, ErrInvalid)
	}

	rows := m.associations[a.EntityID]
	hasPrimary := slices.ContainsFunc(rows, func(r artifact.Association) bool { return r.IsPrimary })
	for i := range rows {
		if rows[i].ArtifactID != a.ArtifactID {
			continue
		}
		a.IsPrimary = rows[i].IsPrimary || (a.IsPrimary && !hasPrimary)
		rows[i] = a
		return false, nil
	}
	a.IsPrimary = a.IsPrimary && !hasPrimary
	m.associations[a.EntityID] = append(rows, a)
	return true, nil
}

// RecordAttempt implements Gateway.
func (m *Memory) RecordAttempt(_ context.Context, entityID, catalog string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.attempts[catalog+"\x00"+entityID] = m.seq
	return nil
}

// Associations returns the entity's associations, primary first.
func (m *Memory) Associations(_ context.Context, entityID string) ([]artifact.Association, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.associations[entityID])
	slices.SortStableFunc(out, func(a, b artifact.Association) int {
		switch {
		case a.IsPrimary == b.IsPrimary:
			return 0
		case a.IsPrimary:
			return -1
		default:
			return 1
		}
	})
	return out, nil
}

// Close is a no-op.
func (*Memory) Close() error { return nil }
