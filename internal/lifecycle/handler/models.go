package handler

import (
	"time"

	"regwatch/internal/lifecycle/models"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
)

type SubmitRegistrationRequest struct {
	Timestamp time.Time `json:"timestamp"`
	NewState  string    `json:"new_state"`
}

func (r SubmitRegistrationRequest) Validate() (models.RegistrationState, error) {
	if r.Timestamp.IsZero() {
		return "", dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	return models.ParseRegistrationState(r.NewState)
}

type SubmitFlagRequest struct {
	Timestamp  time.Time  `json:"timestamp"`
	SetTo      *bool      `json:"set_to"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

func (r SubmitFlagRequest) Validate() error {
	if r.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	if r.SetTo == nil {
		return dErrors.New(dErrors.CodeValidation, "set_to is required")
	}
	return nil
}

type RegistrationResponse struct {
	DomainID   id.DomainID              `json:"domain_id"`
	At         time.Time                `json:"at"`
	Registered bool                     `json:"registered"`
	State      models.RegistrationState `json:"state"`
}

type FlagResponse struct {
	DomainID id.DomainID `json:"domain_id"`
	FlagID   id.FlagID   `json:"flag_id"`
	At       time.Time   `json:"at"`
	Active   bool        `json:"active"`
	EverTrue bool        `json:"ever_true"`
}

type TimelineResponse struct {
	DomainID id.DomainID            `json:"domain_id"`
	Entries  []models.TimelineEntry `json:"entries"`
}
