package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "riskgraph/pkg/domain-errors"
)

// IDs must be valid, non-empty, non-nil UUIDs. Parsing enforces this at
// trust boundaries; direct casts are reserved for internal construction.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEntityID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseEntityID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseTenantID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseEntityID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, EntityID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// If this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	entityID := EntityID(uuid.New())
	tenantID := TenantID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ EntityID = tenantID   // compile error
	// var _ TenantID = entityID   // compile error

	assert.NotEqual(t, uuid.UUID(entityID), uuid.UUID(tenantID))
}

func TestIDTextRoundTrip(t *testing.T) {
	orig := NewScenarioID()
	text, err := orig.MarshalText()
	require.NoError(t, err)

	var parsed ScenarioID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, orig, parsed)
}
