package domain

import (
	"github.com/google/uuid"

	dErrors "regwatch/pkg/domain-errors"
)

// Typed identifiers keep catalog references from being mixed up at compile
// time. Construct them with the Parse functions at trust boundaries.
type (
	DomainID uuid.UUID
	FlagID   uuid.UUID
)

// NewDomainID returns a fresh random domain identifier.
func NewDomainID() DomainID { return DomainID(uuid.New()) }

// NewFlagID returns a fresh random flag identifier.
func NewFlagID() FlagID { return FlagID(uuid.New()) }

// ParseDomainID parses a domain identifier from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseDomainID(s string) (DomainID, error) {
	u, err := parseUUID(s, "domain id")
	if err != nil {
		return DomainID{}, err
	}
	return DomainID(u), nil
}

// ParseFlagID parses a flag identifier from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseFlagID(s string) (FlagID, error) {
	u, err := parseUUID(s, "flag id")
	if err != nil {
		return FlagID{}, err
	}
	return FlagID(u), nil
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func (id DomainID) String() string { return uuid.UUID(id).String() }
func (id DomainID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id DomainID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *DomainID) UnmarshalText(b []byte) error {
	parsed, err := ParseDomainID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id FlagID) String() string { return uuid.UUID(id).String() }
func (id FlagID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id FlagID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *FlagID) UnmarshalText(b []byte) error {
	parsed, err := ParseFlagID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
