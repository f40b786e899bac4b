package service

import (
	"context"
	"sort"

	"riskgraph/internal/graph/models"
	id "riskgraph/pkg/domain"
)

// Export is the full graph payload consumed by dependency visualizations.
type Export struct {
	Nodes []*models.Entity     `json:"nodes"`
	Edges []*models.Dependency `json:"edges"`
}

// LayerSummary aggregates one dependency layer across the tenant graph.
type LayerSummary struct {
	Layer         models.Layer `json:"layer"`
	EdgeCount     int          `json:"edge_count"`
	CriticalCount int          `json:"critical_count"`
	AvgStrength   float64      `json:"avg_strength"`
}

// LayerExposure is one entity's weighted exposure within a single layer.
// Exposure sums edge strength, doubled for critical edges, mirroring the
// scoring engine's edge weighting.
type LayerExposure struct {
	Layer            models.Layer `json:"layer"`
	InboundCount     int          `json:"inbound_count"`
	OutboundCount    int          `json:"outbound_count"`
	InboundExposure  float64      `json:"inbound_exposure"`
	OutboundExposure float64      `json:"outbound_exposure"`
}

// CrossLayerImpact explains how an entity's connectivity spreads across layers.
type CrossLayerImpact struct {
	EntityID id.EntityID     `json:"entity_id"`
	Layers   []LayerExposure `json:"layers"`
}

// ExportGraph returns every node and edge for the tenant.
func (s *Service) ExportGraph(ctx context.Context, tenantID id.TenantID) (*Export, error) {
	snap, err := s.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	nodes := snap.Entities()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return &Export{Nodes: nodes, Edges: snap.Dependencies()}, nil
}

// SummarizeLayers aggregates edge counts and strengths per layer.
func (s *Service) SummarizeLayers(ctx context.Context, tenantID id.TenantID) ([]LayerSummary, error) {
	snap, err := s.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byLayer := make(map[models.Layer]*LayerSummary)
	for _, d := range snap.Dependencies() {
		sum, ok := byLayer[d.Layer]
		if !ok {
			sum = &LayerSummary{Layer: d.Layer}
			byLayer[d.Layer] = sum
		}
		sum.EdgeCount++
		if d.IsCritical {
			sum.CriticalCount++
		}
		sum.AvgStrength += d.Strength
	}

	out := make([]LayerSummary, 0, len(byLayer))
	for _, layer := range models.Layers() {
		sum, ok := byLayer[layer]
		if !ok {
			continue
		}
		sum.AvgStrength /= float64(sum.EdgeCount)
		out = append(out, *sum)
	}
	return out, nil
}

// CrossLayerImpactFor breaks an entity's connectivity down by layer so the
// caller can see which layers would transmit a shock to or from it.
func (s *Service) CrossLayerImpactFor(ctx context.Context, tenantID id.TenantID, entityID id.EntityID) (*CrossLayerImpact, error) {
	if _, err := s.GetEntity(ctx, tenantID, entityID); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byLayer := make(map[models.Layer]*LayerExposure)
	exposure := func(layer models.Layer) *LayerExposure {
		e, ok := byLayer[layer]
		if !ok {
			e = &LayerExposure{Layer: layer}
			byLayer[layer] = e
		}
		return e
	}
	for _, d := range snap.Inbound(entityID) {
		e := exposure(d.Layer)
		e.InboundCount++
		e.InboundExposure += edgeWeight(d)
	}
	for _, d := range snap.Outbound(entityID) {
		e := exposure(d.Layer)
		e.OutboundCount++
		e.OutboundExposure += edgeWeight(d)
	}

	impact := &CrossLayerImpact{EntityID: entityID}
	for _, layer := range models.Layers() {
		if e, ok := byLayer[layer]; ok {
			impact.Layers = append(impact.Layers, *e)
		}
	}
	return impact, nil
}

func edgeWeight(d *models.Dependency) float64 {
	w := d.Strength
	if d.IsCritical {
		w *= 2
	}
	return w
}
