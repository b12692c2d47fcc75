package domain

import (
	"strings"

	dErrors "regwatch/pkg/domain-errors"
)

// FlagName identifies a status flag in the fixed flag catalog.
// Invariant: the value must be one of the supported names.
//
// Usage: construct via ParseFlagName at trust boundaries; direct casting
// bypasses validation.
type FlagName string

const (
	FlagExpired         FlagName = "EXPIRED"
	FlagOutzone         FlagName = "OUTZONE"
	FlagDeleteCandidate FlagName = "DELETE_CANDIDATE"
)

var validFlagNames = map[FlagName]bool{
	FlagExpired:         true,
	FlagOutzone:         true,
	FlagDeleteCandidate: true,
}

// ParseFlagName constructs a FlagName from external input. Matching is
// case-insensitive; the canonical form is upper case.
//
// Errors: CodeInvalidInput when the value is empty or not in the catalog.
func ParseFlagName(s string) (FlagName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "flag name cannot be empty")
	}
	n := FlagName(strings.ToUpper(s))
	if !n.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown flag name")
	}
	return n, nil
}

// IsValid checks the name against the catalog.
func (n FlagName) IsValid() bool {
	return validFlagNames[n]
}

func (n FlagName) String() string {
	return string(n)
}

// CatalogFlagNames lists every supported flag, in a stable order.
func CatalogFlagNames() []FlagName {
	return []FlagName{FlagExpired, FlagOutzone, FlagDeleteCandidate}
}
