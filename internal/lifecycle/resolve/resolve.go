// Package resolve computes effective state from transition histories.
//
// Every function is pure: the result depends only on its arguments.
// Histories must be in ascending (timestamp, seq) order, as returned by the
// stores.
package resolve

import (
	"fmt"
	"sort"
	"time"

	"regwatch/internal/lifecycle/models"
)

// Registration returns the state of the most recent transition at or
// before at. A domain with no such transition is unregistered.
func Registration(history []models.RegistrationTransition, at time.Time) models.RegistrationState {
	i := sort.Search(len(history), func(i int) bool {
		return history[i].OccurredAt.After(at)
	})
	if i == 0 {
		return models.StateUnregistered
	}
	return history[i-1].NewState
}

// RegistrationFromLatest maps the result of an as-of lookup to a state.
func RegistrationFromLatest(latest *models.RegistrationTransition) models.RegistrationState {
	if latest == nil {
		return models.StateUnregistered
	}
	return latest.NewState
}

// FlagActive ranks only set_to=true transitions: the latest one at or before
// at decides, and it is active while its window covers at. A later
// set_to=false transition does not end an unbounded set.
func FlagActive(history []models.FlagTransition, at time.Time) bool {
	return FlagActiveFromLatestSet(LatestSetAsOf(history, at), at)
}

// LatestSetAsOf returns the latest set_to=true transition at or before at.
func LatestSetAsOf(history []models.FlagTransition, at time.Time) *models.FlagTransition {
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if !t.SetTo || t.OccurredAt.After(at) {
			continue
		}
		return &t
	}
	return nil
}

// FlagActiveFromLatestSet applies the window check to the ranked record.
func FlagActiveFromLatestSet(latestSet *models.FlagTransition, at time.Time) bool {
	if latestSet == nil {
		return false
	}
	return latestSet.ValidUntil == nil || latestSet.ValidUntil.After(at)
}

// EverTrue reports whether any set_to=true transition exists. Appending to
// history can only turn the answer from false to true.
func EverTrue(history []models.FlagTransition) bool {
	for _, t := range history {
		if t.SetTo {
			return true
		}
	}
	return false
}

// ValidateAlternation checks that no two adjacent registration transitions
// carry the same state.
func ValidateAlternation(history []models.RegistrationTransition) error {
	for i := 1; i < len(history); i++ {
		if history[i].NewState == history[i-1].NewState {
			return fmt.Errorf("transitions %d and %d both %s", history[i-1].Seq, history[i].Seq, history[i].NewState)
		}
	}
	return nil
}

// Timeline merges registration and flag histories into one ascending
// sequence ordered by timestamp, then insertion sequence.
func Timeline(registrations []models.RegistrationTransition, flags []models.FlagTransition) []models.TimelineEntry {
	out := make([]models.TimelineEntry, 0, len(registrations)+len(flags))
	for i := range registrations {
		r := registrations[i]
		out = append(out, models.TimelineEntry{
			Kind:         models.TimelineRegistration,
			OccurredAt:   r.OccurredAt,
			Seq:          r.Seq,
			Registration: &r,
		})
	}
	for i := range flags {
		f := flags[i]
		out = append(out, models.TimelineEntry{
			Kind:       models.TimelineFlag,
			OccurredAt: f.OccurredAt,
			Seq:        f.Seq,
			Flag:       &f,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == models.TimelineRegistration
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
