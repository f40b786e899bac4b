// Package memory holds the ledger in process memory. Suitable for tests and
// single-node deployments; the append-only history lives only as long as the
// process.
package memory

import (
	"context"
	"sync"
	"time"

	"riskgraph/internal/ledger/models"
	scoringmodels "riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	"riskgraph/pkg/platform/sentinel"
)

type tenantLedger struct {
	entries []*models.Entry
	current map[id.EntityID]*models.Current
}

type Store struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*tenantLedger
}

func New() *Store {
	return &Store{tenants: make(map[id.TenantID]*tenantLedger)}
}

func (s *Store) tenant(tenantID id.TenantID) *tenantLedger {
	tl, ok := s.tenants[tenantID]
	if !ok {
		tl = &tenantLedger{current: make(map[id.EntityID]*models.Current)}
		s.tenants[tenantID] = tl
	}
	return tl
}

func (s *Store) Append(_ context.Context, tenantID id.TenantID, entries []*models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tl := s.tenant(tenantID)
	for _, entry := range entries {
		copied := *entry
		tl.entries = append(tl.entries, &copied)
		applyToProjection(tl, &copied)
	}
	return nil
}

// applyToProjection folds one entry into the current view. A computed entry
// replaces the justification wholesale (including dropping any override); an
// override attaches to the existing justification.
func applyToProjection(tl *tenantLedger, entry *models.Entry) {
	switch entry.Kind {
	case models.EntryJustificationComputed:
		just := cloneJustification(entry.Justification)
		just.Override = nil
		tl.current[entry.EntityID] = &models.Current{
			EntityID:      entry.EntityID,
			Justification: just,
			UpdatedAt:     entry.RecordedAt,
		}
	case models.EntryOverrideApplied:
		cur, ok := tl.current[entry.EntityID]
		if !ok {
			return
		}
		override := *entry.Override
		cur.Justification.Override = &override
		cur.UpdatedAt = entry.RecordedAt
	case models.EntryOverrideCleared:
		cur, ok := tl.current[entry.EntityID]
		if !ok {
			return
		}
		cur.Justification.Override = nil
		cur.UpdatedAt = entry.RecordedAt
	}
}

func (s *Store) Current(_ context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Current, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tl, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cur, ok := tl.current[entityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCurrent(cur), nil
}

func (s *Store) ListCurrent(_ context.Context, tenantID id.TenantID) ([]*models.Current, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tl, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	out := make([]*models.Current, 0, len(tl.current))
	for _, cur := range tl.current {
		out = append(out, cloneCurrent(cur))
	}
	return out, nil
}

func (s *Store) History(_ context.Context, tenantID id.TenantID, entityID id.EntityID, limit int) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tl, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []*models.Entry
	for i := len(tl.entries) - 1; i >= 0; i-- {
		if tl.entries[i].EntityID != entityID {
			continue
		}
		copied := *tl.entries[i]
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) HistorySince(_ context.Context, tenantID id.TenantID, since time.Time) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tl, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []*models.Entry
	for _, entry := range tl.entries {
		if entry.RecordedAt.Before(since) {
			continue
		}
		copied := *entry
		out = append(out, &copied)
	}
	return out, nil
}

func cloneJustification(j *scoringmodels.Justification) *scoringmodels.Justification {
	copied := *j
	if j.Override != nil {
		o := *j.Override
		copied.Override = &o
	}
	return &copied
}

func cloneCurrent(c *models.Current) *models.Current {
	return &models.Current{
		EntityID:      c.EntityID,
		Justification: cloneJustification(c.Justification),
		UpdatedAt:     c.UpdatedAt,
	}
}
