package scoring

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	dErrors "riskgraph/pkg/domain-errors"
)

// JurisdictionTable maps ISO country codes onto a [0,100] jurisdiction risk
// score. The table is external input: operators load it from their provider
// of choice; entities in unlisted countries score 0 with an insufficient-data
// factor flagged in the justification.
type JurisdictionTable struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewJurisdictionTable builds a table from the given scores. Keys are
// normalized to upper case.
func NewJurisdictionTable(scores map[string]float64) *JurisdictionTable {
	t := &JurisdictionTable{scores: make(map[string]float64, len(scores))}
	for cc, score := range scores {
		t.scores[strings.ToUpper(cc)] = score
	}
	return t
}

// LoadJurisdictionTable reads a JSON object of {"CC": score, ...}.
func LoadJurisdictionTable(r io.Reader) (*JurisdictionTable, error) {
	var scores map[string]float64
	if err := json.NewDecoder(r).Decode(&scores); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed jurisdiction table")
	}
	for cc, score := range scores {
		if score < 0 || score > 100 {
			return nil, dErrors.Newf(dErrors.CodeValidation, "jurisdiction score for %q out of [0,100]", cc)
		}
	}
	return NewJurisdictionTable(scores), nil
}

// Lookup returns the country's risk score and whether the country is listed.
func (t *JurisdictionTable) Lookup(countryCode string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	score, ok := t.scores[strings.ToUpper(countryCode)]
	return score, ok
}

// Replace swaps the whole table, for periodic refreshes from the provider.
func (t *JurisdictionTable) Replace(scores map[string]float64) {
	normalized := make(map[string]float64, len(scores))
	for cc, score := range scores {
		normalized[strings.ToUpper(cc)] = score
	}
	t.mu.Lock()
	t.scores = normalized
	t.mu.Unlock()
}
