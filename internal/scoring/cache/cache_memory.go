package cache

import (
	"context"
	"sync"
	"time"

	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
)

// Memory is an in-process cache for tests and single-node deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[id.TenantID]map[id.EntityID]*models.Justification
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[id.TenantID]map[id.EntityID]*models.Justification),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, tenantID id.TenantID, entityID id.EntityID) (*models.Justification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	just, ok := m.entries[tenantID][entityID]
	if !ok {
		return nil, nil
	}
	if m.now().After(just.Score.ValidUntil) {
		return nil, nil
	}
	copied := *just
	return &copied, nil
}

func (m *Memory) Set(_ context.Context, tenantID id.TenantID, just *models.Justification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(tenantID, just)
	return nil
}

func (m *Memory) SetBatch(_ context.Context, tenantID id.TenantID, justs []*models.Justification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, just := range justs {
		m.store(tenantID, just)
	}
	return nil
}

func (m *Memory) store(tenantID id.TenantID, just *models.Justification) {
	if m.entries[tenantID] == nil {
		m.entries[tenantID] = make(map[id.EntityID]*models.Justification)
	}
	copied := *just
	m.entries[tenantID][just.EntityID] = &copied
}

func (m *Memory) InvalidateEntity(_ context.Context, tenantID id.TenantID, entityID id.EntityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[tenantID], entityID)
	return nil
}

func (m *Memory) InvalidateTenant(_ context.Context, tenantID id.TenantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, tenantID)
	return nil
}
