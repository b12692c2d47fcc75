// Package seed installs the flag catalog and the reference fixtures used by
// demos and end-to-end tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	catalogmodels "regwatch/internal/catalog/models"
	"regwatch/internal/lifecycle/models"
	id "regwatch/pkg/domain"
	dErrors "regwatch/pkg/domain-errors"
)

type Catalog interface {
	EnsureFlags(ctx context.Context) (map[id.FlagName]*catalogmodels.Flag, error)
	RegisterFQDN(ctx context.Context, fqdn string) (*catalogmodels.Domain, error)
	ResolveFQDN(ctx context.Context, fqdn string) (*catalogmodels.Domain, error)
	SetSnapshot(ctx context.Context, domainID id.DomainID, snapshot catalogmodels.Snapshot) (*catalogmodels.Domain, error)
}

type Lifecycle interface {
	SubmitRegistration(ctx context.Context, domainID id.DomainID, at time.Time, newState models.RegistrationState) (*models.RegistrationTransition, error)
	SubmitFlag(ctx context.Context, domainID id.DomainID, flagID id.FlagID, at time.Time, setTo bool, validUntil *time.Time) (*models.FlagTransition, error)
}

type Registration struct {
	At    time.Time
	State models.RegistrationState
}

type FlagEvent struct {
	Flag       id.FlagName
	At         time.Time
	SetTo      bool
	ValidUntil *time.Time
}

// Fixture is one domain with its snapshot fields and history.
type Fixture struct {
	FQDN          string
	Snapshot      catalogmodels.Snapshot
	Registrations []Registration
	Flags         []FlagEvent
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func until(s string) *time.Time {
	t := at(s)
	return &t
}

// Fixtures returns the reference domains:
//
//   - example.com: registered then unregistered, EXPIRED with a bounded window.
//     Its snapshot still says registered, so it shows up as drift.
//   - testdomain.org: OUTZONE set with no expiry.
//   - overlapdomain.com: EXPIRED set unbounded, then a false record that the
//     resolver does not rank. EXPIRED stays active.
//   - dualflag.net: EXPIRED and OUTZONE both set at some point.
func Fixtures() []Fixture {
	return []Fixture{
		{
			FQDN:     "example.com",
			Snapshot: catalogmodels.Snapshot{IsRegistered: true, ClearStatus: true},
			Registrations: []Registration{
				{At: at("2024-01-01T10:00:00Z"), State: models.StateRegistered},
				{At: at("2024-06-01T15:00:00Z"), State: models.StateUnregistered},
			},
			Flags: []FlagEvent{
				{Flag: id.FlagExpired, At: at("2024-01-01T10:00:00Z"), SetTo: true, ValidUntil: until("2024-06-01T15:00:00Z")},
				{Flag: id.FlagExpired, At: at("2024-06-01T15:00:01Z"), SetTo: false},
			},
		},
		{
			FQDN:     "testdomain.org",
			Snapshot: catalogmodels.Snapshot{IsRegistered: true, ClearStatus: false},
			Registrations: []Registration{
				{At: at("2024-01-15T00:00:00Z"), State: models.StateRegistered},
			},
			Flags: []FlagEvent{
				{Flag: id.FlagOutzone, At: at("2024-03-01T00:00:00Z"), SetTo: true},
			},
		},
		{
			FQDN:     "overlapdomain.com",
			Snapshot: catalogmodels.Snapshot{IsRegistered: true, ClearStatus: true},
			Registrations: []Registration{
				{At: at("2024-07-01T00:00:00Z"), State: models.StateRegistered},
			},
			Flags: []FlagEvent{
				{Flag: id.FlagExpired, At: at("2024-07-21T13:00:00Z"), SetTo: true},
				{Flag: id.FlagExpired, At: at("2024-09-01T09:00:00Z"), SetTo: false},
			},
		},
		{
			FQDN:     "dualflag.net",
			Snapshot: catalogmodels.Snapshot{IsRegistered: true, ClearStatus: true},
			Registrations: []Registration{
				{At: at("2024-02-01T00:00:00Z"), State: models.StateRegistered},
			},
			Flags: []FlagEvent{
				{Flag: id.FlagExpired, At: at("2024-02-01T00:00:00Z"), SetTo: true, ValidUntil: until("2024-03-01T00:00:00Z")},
				{Flag: id.FlagOutzone, At: at("2024-02-15T00:00:00Z"), SetTo: true},
			},
		},
	}
}

// Load installs the flag catalog and every fixture whose domain is not in
// the catalog yet. Running it twice is a no-op.
func Load(ctx context.Context, catalog Catalog, lifecycle Lifecycle, logger *slog.Logger) error {
	flags, err := catalog.EnsureFlags(ctx)
	if err != nil {
		return fmt.Errorf("install flags: %w", err)
	}

	for _, f := range Fixtures() {
		_, err := catalog.ResolveFQDN(ctx, f.FQDN)
		if err == nil {
			logger.DebugContext(ctx, "fixture already present", "fqdn", f.FQDN)
			continue
		}
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return fmt.Errorf("look up %s: %w", f.FQDN, err)
		}
		if err := loadFixture(ctx, catalog, lifecycle, flags, f); err != nil {
			return fmt.Errorf("load %s: %w", f.FQDN, err)
		}
		logger.InfoContext(ctx, "fixture loaded",
			"fqdn", f.FQDN,
			"registrations", len(f.Registrations),
			"flags", len(f.Flags),
		)
	}
	return nil
}

func loadFixture(ctx context.Context, catalog Catalog, lifecycle Lifecycle, flags map[id.FlagName]*catalogmodels.Flag, f Fixture) error {
	d, err := catalog.RegisterFQDN(ctx, f.FQDN)
	if err != nil {
		return err
	}
	for _, r := range f.Registrations {
		if _, err := lifecycle.SubmitRegistration(ctx, d.ID, r.At, r.State); err != nil {
			return err
		}
	}
	for _, e := range f.Flags {
		flag, ok := flags[e.Flag]
		if !ok {
			return errors.New("flag " + string(e.Flag) + " missing from catalog")
		}
		if _, err := lifecycle.SubmitFlag(ctx, d.ID, flag.ID, e.At, e.SetTo, e.ValidUntil); err != nil {
			return err
		}
	}
	_, err = catalog.SetSnapshot(ctx, d.ID, f.Snapshot)
	return err
}
