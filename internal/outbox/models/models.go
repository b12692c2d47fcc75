// Package models describes rows of the transactional outbox.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one audit event waiting to be relayed to the broker.
//
// AggregateID is the domain id for lifecycle events, so the relay keys
// records by domain and the broker keeps per-domain order.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Attempts      int
}

func (e Entry) Published() bool {
	return e.PublishedAt != nil
}
