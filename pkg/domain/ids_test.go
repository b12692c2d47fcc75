package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "regwatch/pkg/domain-errors"
)

// TestParseDomainID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseDomainID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDomainID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDomainID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseDomainID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseDomainID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, DomainID(validUUID), id)
	})
}

func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE domains;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errDomain := ParseDomainID(tt.input)
			_, errFlag := ParseFlagID(tt.input)
			if tt.wantErr {
				require.Error(t, errDomain)
				require.Error(t, errFlag)
				assert.True(t, dErrors.HasCode(errDomain, dErrors.CodeInvalidInput))
				assert.True(t, dErrors.HasCode(errFlag, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, errDomain)
				require.NoError(t, errFlag)
			}
		})
	}
}

func TestIDs_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Domain DomainID `json:"domain_id"`
		Flag   FlagID   `json:"flag_id"`
	}
	in := payload{Domain: NewDomainID(), Flag: NewFlagID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), in.Domain.String())

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)

	err = json.Unmarshal([]byte(`{"domain_id":"nope"}`), &out)
	require.Error(t, err)
}

func TestParseFlagName(t *testing.T) {
	t.Run("accepts catalog names case-insensitively", func(t *testing.T) {
		n, err := ParseFlagName(" outzone ")
		require.NoError(t, err)
		assert.Equal(t, FlagOutzone, n)
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		_, err := ParseFlagName("SUSPENDED")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseFlagName("")
		require.Error(t, err)
	})

	t.Run("catalog names are all valid", func(t *testing.T) {
		for _, n := range CatalogFlagNames() {
			assert.True(t, n.IsValid(), n.String())
		}
	})
}
