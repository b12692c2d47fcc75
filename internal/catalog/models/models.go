package models

import (
	"strings"
	"time"

	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
)

const maxLabelLength = 63

// Domain is a catalog entry for a registered name under a TLD.
//
// Invariants:
//   - Name and TLD are non-empty lower-case labels without leading or trailing dots
//   - (Name, TLD) is unique across the catalog
//
// IsRegistered and ClearStatus are a snapshot maintained by operators. They
// are not derived from the transition log and may disagree with it.
type Domain struct {
	ID           id.DomainID `json:"id"`
	Name         string      `json:"name"`
	TLD          string      `json:"tld"`
	IsRegistered bool        `json:"is_registered"`
	ClearStatus  bool        `json:"clear_status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func NewDomain(domainID id.DomainID, name, tld string, now time.Time) (*Domain, error) {
	name = normalizeLabel(name)
	tld = normalizeLabel(tld)
	if err := validateLabel(name, "name"); err != nil {
		return nil, err
	}
	if err := validateLabel(tld, "tld"); err != nil {
		return nil, err
	}
	if strings.Contains(tld, ".") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tld must be a single label")
	}
	return &Domain{
		ID:        domainID,
		Name:      name,
		TLD:       tld,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FQDN returns name + "." + tld.
func (d *Domain) FQDN() string {
	return d.Name + "." + d.TLD
}

// ApplySnapshot overwrites the operator-maintained snapshot fields.
func (d *Domain) ApplySnapshot(snapshot Snapshot, now time.Time) {
	d.IsRegistered = snapshot.IsRegistered
	d.ClearStatus = snapshot.ClearStatus
	d.UpdatedAt = now
}

// Snapshot carries the denormalized fields of a Domain.
type Snapshot struct {
	IsRegistered bool `json:"is_registered"`
	ClearStatus  bool `json:"clear_status"`
}

// SplitFQDN splits "name.tld" on the last dot.
func SplitFQDN(fqdn string) (name, tld string, err error) {
	fqdn = normalizeLabel(fqdn)
	i := strings.LastIndex(fqdn, ".")
	if i <= 0 || i == len(fqdn)-1 {
		return "", "", dErrors.New(dErrors.CodeInvalidInput, "domain must be of the form name.tld")
	}
	return fqdn[:i], fqdn[i+1:], nil
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateLabel(s, field string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, field+" cannot be empty")
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return dErrors.New(dErrors.CodeInvariantViolation, field+" cannot start or end with a dot")
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, field+" contains an empty label")
		}
		if len(label) > maxLabelLength {
			return dErrors.New(dErrors.CodeInvariantViolation, field+" label exceeds 63 characters")
		}
	}
	return nil
}

// Flag is a status flag drawn from the fixed catalog.
type Flag struct {
	ID   id.FlagID   `json:"id"`
	Name id.FlagName `json:"name"`
}

func NewFlag(flagID id.FlagID, name string) (*Flag, error) {
	flagName, err := id.ParseFlagName(name)
	if err != nil {
		return nil, err
	}
	return &Flag{ID: flagID, Name: flagName}, nil
}
