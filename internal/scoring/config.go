package scoring

import (
	"math"
	"sync"
	"time"

	graphmodels "riskgraph/internal/graph/models"
	"riskgraph/internal/scoring/models"
	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
)

// Weights combine the three component scores into the overall score.
// They are normalized to sum to 1 before use.
type Weights struct {
	Constraint float64 `json:"constraint"`
	Dependency float64 `json:"dependency"`
	Country    float64 `json:"country"`
}

// Config is the versioned, tenant-scoped scoring configuration. It is passed
// explicitly into each scoring call — never read from ambient globals — so
// concurrent recalculations under different versions stay reproducible.
type Config struct {
	Version int     `json:"version"`
	Weights Weights `json:"weights"`
	// SaturationK shapes the constraint score: 100 * (1 - e^(-k * sum)).
	SaturationK float64 `json:"saturation_k"`
	// MaxDepth bounds the dependency BFS.
	MaxDepth int `json:"max_depth"`
	// Decay is the per-hop attenuation factor, strictly below 1.
	Decay float64 `json:"decay"`
	// MandatoryMultiplier amplifies mandatory constraints.
	MandatoryMultiplier float64 `json:"mandatory_multiplier"`
	// LayerWeights multiply edge contributions per dependency layer.
	LayerWeights map[graphmodels.Layer]float64 `json:"layer_weights"`
	// SeverityWeights scale constraint contributions per severity.
	SeverityWeights map[graphmodels.Severity]float64 `json:"severity_weights"`
	Thresholds      models.Thresholds                `json:"thresholds"`
	// ScoreTTL sets valid_until = calculated_at + TTL.
	ScoreTTL time.Duration `json:"score_ttl"`
}

// DefaultConfig returns the platform defaults. The decay/depth/saturation
// constants are starting points, not hard truths; tenants tune them.
func DefaultConfig() Config {
	return Config{
		Version:             1,
		Weights:             Weights{Constraint: 0.5, Dependency: 0.3, Country: 0.2},
		SaturationK:         0.15,
		MaxDepth:            3,
		Decay:               0.5,
		MandatoryMultiplier: 1.5,
		LayerWeights: map[graphmodels.Layer]float64{
			graphmodels.LayerLegal:       1.5,
			graphmodels.LayerRegulatory:  1.3,
			graphmodels.LayerFinancial:   1.2,
			graphmodels.LayerOperational: 1.0,
			graphmodels.LayerTechnical:   1.0,
			graphmodels.LayerSupplyChain: 1.0,
			graphmodels.LayerHuman:       0.9,
			graphmodels.LayerAcademic:    0.8,
		},
		SeverityWeights: map[graphmodels.Severity]float64{
			graphmodels.SeverityCritical: 1.0,
			graphmodels.SeverityHigh:     0.7,
			graphmodels.SeverityMedium:   0.4,
			graphmodels.SeverityLow:      0.2,
		},
		Thresholds: models.DefaultThresholds(),
		ScoreTTL:   time.Hour,
	}
}

// Normalize validates the config and scales the weights to sum to 1.
// Returns CalculationError on malformed weights so the caller never scores
// with a broken configuration.
func (c *Config) Normalize() error {
	w := c.Weights
	for _, v := range []float64{w.Constraint, w.Dependency, w.Country} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return dErrors.New(dErrors.CodeCalculation, "score weights must be finite and non-negative")
		}
	}
	sum := w.Constraint + w.Dependency + w.Country
	if sum <= 0 {
		return dErrors.New(dErrors.CodeCalculation, "score weights must sum to a positive value")
	}
	c.Weights = Weights{
		Constraint: w.Constraint / sum,
		Dependency: w.Dependency / sum,
		Country:    w.Country / sum,
	}

	if c.Decay < 0 || c.Decay >= 1 {
		return dErrors.New(dErrors.CodeCalculation, "decay must be within [0,1)")
	}
	if c.MaxDepth < 0 {
		return dErrors.New(dErrors.CodeCalculation, "max depth cannot be negative")
	}
	if c.SaturationK <= 0 {
		return dErrors.New(dErrors.CodeCalculation, "saturation constant must be positive")
	}
	if c.MandatoryMultiplier < 1 {
		return dErrors.New(dErrors.CodeCalculation, "mandatory multiplier cannot be below 1")
	}
	if c.ScoreTTL <= 0 {
		c.ScoreTTL = time.Hour
	}
	return nil
}

// LayerWeight returns the layer's multiplier, defaulting to 1.
func (c *Config) LayerWeight(layer graphmodels.Layer) float64 {
	if w, ok := c.LayerWeights[layer]; ok {
		return w
	}
	return 1
}

// SeverityWeight returns the severity's multiplier, defaulting to the
// medium weight for unknown values.
func (c *Config) SeverityWeight(sev graphmodels.Severity) float64 {
	if w, ok := c.SeverityWeights[sev]; ok {
		return w
	}
	return 0.4
}

// ConfigStore hands out versioned tenant configs. Updates bump the version;
// a running recalculation keeps the version it started with.
type ConfigStore struct {
	mu      sync.RWMutex
	configs map[id.TenantID]Config
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{configs: make(map[id.TenantID]Config)}
}

// Get returns the tenant's config, falling back to defaults.
func (s *ConfigStore) Get(tenantID id.TenantID) Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.configs[tenantID]; ok {
		return cfg
	}
	return DefaultConfig()
}

// Set validates, versions, and stores the tenant's config.
func (s *ConfigStore) Set(tenantID id.TenantID, cfg Config) (Config, error) {
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.configs[tenantID]; ok {
		cfg.Version = prev.Version + 1
	} else {
		cfg.Version = DefaultConfig().Version + 1
	}
	s.configs[tenantID] = cfg
	return cfg, nil
}
