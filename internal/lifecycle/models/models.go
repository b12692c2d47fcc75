package models

import (
	"strings"
	"time"

	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
)

// RegistrationState is the two-state registration machine.
//
// Invariant: consecutive transitions for a domain never repeat a state.
type RegistrationState string

const (
	StateRegistered   RegistrationState = "registered"
	StateUnregistered RegistrationState = "unregistered"
)

func ParseRegistrationState(s string) (RegistrationState, error) {
	state := RegistrationState(strings.ToLower(strings.TrimSpace(s)))
	if !state.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "state must be registered or unregistered")
	}
	return state, nil
}

func (s RegistrationState) IsValid() bool {
	return s == StateRegistered || s == StateUnregistered
}

// CanTransitionTo is the guard new != current.
func (s RegistrationState) CanTransitionTo(next RegistrationState) bool {
	return next.IsValid() && s != next
}

func (s RegistrationState) String() string {
	return string(s)
}

// Seq is the insertion sequence assigned by the store. It orders
// transitions that share a timestamp.
type Seq int64

// RegistrationTransition records a registration state change. Immutable
// once appended.
type RegistrationTransition struct {
	Seq        Seq               `json:"seq"`
	DomainID   id.DomainID       `json:"domain_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	NewState   RegistrationState `json:"new_state"`
	RecordedAt time.Time         `json:"recorded_at"`
}

func NewRegistrationTransition(domainID id.DomainID, at time.Time, state RegistrationState) (*RegistrationTransition, error) {
	if domainID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "domain id is required")
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "timestamp is required")
	}
	if !state.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "state must be registered or unregistered")
	}
	return &RegistrationTransition{
		DomainID:   domainID,
		OccurredAt: at.UTC(),
		NewState:   state,
	}, nil
}

// Before orders by timestamp, then insertion sequence.
func (t RegistrationTransition) Before(other RegistrationTransition) bool {
	if !t.OccurredAt.Equal(other.OccurredAt) {
		return t.OccurredAt.Before(other.OccurredAt)
	}
	return t.Seq < other.Seq
}

// FlagTransition records a flag being set or cleared with a validity
// window [OccurredAt, ValidUntil). A nil ValidUntil is unbounded.
type FlagTransition struct {
	Seq        Seq         `json:"seq"`
	DomainID   id.DomainID `json:"domain_id"`
	FlagID     id.FlagID   `json:"flag_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	SetTo      bool        `json:"set_to"`
	ValidUntil *time.Time  `json:"valid_until,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// NewFlagTransition validates the window: ValidUntil must be after the
// timestamp when present.
func NewFlagTransition(domainID id.DomainID, flagID id.FlagID, at time.Time, setTo bool, validUntil *time.Time) (*FlagTransition, error) {
	if domainID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "domain id is required")
	}
	if flagID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "flag id is required")
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "timestamp is required")
	}
	var until *time.Time
	if validUntil != nil {
		if !validUntil.After(at) {
			return nil, dErrors.New(dErrors.CodeInvalidValidityWindow, "valid_until must be after timestamp")
		}
		u := validUntil.UTC()
		until = &u
	}
	return &FlagTransition{
		DomainID:   domainID,
		FlagID:     flagID,
		OccurredAt: at.UTC(),
		SetTo:      setTo,
		ValidUntil: until,
	}, nil
}

func (t FlagTransition) Unbounded() bool {
	return t.ValidUntil == nil
}

// CoversInstant reports whether at lies inside [OccurredAt, ValidUntil).
func (t FlagTransition) CoversInstant(at time.Time) bool {
	if at.Before(t.OccurredAt) {
		return false
	}
	return t.ValidUntil == nil || t.ValidUntil.After(at)
}

// Before orders by timestamp, then insertion sequence.
func (t FlagTransition) Before(other FlagTransition) bool {
	if !t.OccurredAt.Equal(other.OccurredAt) {
		return t.OccurredAt.Before(other.OccurredAt)
	}
	return t.Seq < other.Seq
}

// TimelineKind discriminates timeline entries.
type TimelineKind string

const (
	TimelineRegistration TimelineKind = "registration"
	TimelineFlag         TimelineKind = "flag"
)

// TimelineEntry is one row of a domain's combined history.
type TimelineEntry struct {
	Kind         TimelineKind            `json:"kind"`
	OccurredAt   time.Time               `json:"occurred_at"`
	Seq          Seq                     `json:"seq"`
	Registration *RegistrationTransition `json:"registration,omitempty"`
	Flag         *FlagTransition         `json:"flag,omitempty"`
}
