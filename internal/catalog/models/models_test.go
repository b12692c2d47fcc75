package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
)

func TestNewDomain(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("normalises case and whitespace", func(t *testing.T) {
		d, err := NewDomain(id.NewDomainID(), "  Example ", "COM", now)
		require.NoError(t, err)
		assert.Equal(t, "example", d.Name)
		assert.Equal(t, "com", d.TLD)
		assert.Equal(t, "example.com", d.FQDN())
		assert.False(t, d.IsRegistered)
		assert.False(t, d.ClearStatus)
		assert.Equal(t, now, d.CreatedAt)
	})

	t.Run("allows multi-label names", func(t *testing.T) {
		d, err := NewDomain(id.NewDomainID(), "shop.example", "org", now)
		require.NoError(t, err)
		assert.Equal(t, "shop.example.org", d.FQDN())
	})

	tests := []struct {
		name     string
		label    string
		tld      string
		contains string
	}{
		{"empty name", "", "com", "name cannot be empty"},
		{"empty tld", "example", " ", "tld cannot be empty"},
		{"leading dot", ".example", "com", "cannot start or end with a dot"},
		{"empty inner label", "a..b", "com", "empty label"},
		{"multi-label tld", "example", "co.uk", "single label"},
		{"long label", strings.Repeat("a", 64), "com", "63 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDomain(id.NewDomainID(), tt.label, tt.tld, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestApplySnapshot(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	d, err := NewDomain(id.NewDomainID(), "example", "com", created)
	require.NoError(t, err)

	d.ApplySnapshot(Snapshot{IsRegistered: true, ClearStatus: true}, updated)
	assert.True(t, d.IsRegistered)
	assert.True(t, d.ClearStatus)
	assert.Equal(t, updated, d.UpdatedAt)
	assert.Equal(t, created, d.CreatedAt)
}

func TestSplitFQDN(t *testing.T) {
	name, tld, err := SplitFQDN("Shop.Example.ORG")
	require.NoError(t, err)
	assert.Equal(t, "shop.example", name)
	assert.Equal(t, "org", tld)

	for _, bad := range []string{"", "example", ".com", "example."} {
		_, _, err := SplitFQDN(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "input %q", bad)
	}
}

func TestNewFlag(t *testing.T) {
	f, err := NewFlag(id.NewFlagID(), "outzone")
	require.NoError(t, err)
	assert.Equal(t, id.FlagOutzone, f.Name)

	_, err = NewFlag(id.NewFlagID(), "SUSPENDED")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
