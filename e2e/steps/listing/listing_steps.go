package listing

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	DecodeResponse(v any) error
	Alias(fqdn string) string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &listingSteps{tc: tc}

	ctx.Step(`^I request the "(snapshot|ever-occurred)" listing$`, steps.requestListing)
	ctx.Step(`^I request the "(current|drift)" listing at "([^"]*)"$`, steps.requestListingAt)
	ctx.Step(`^the listing should contain "([^"]*)"$`, steps.listingShouldContain)
	ctx.Step(`^the listing should not contain "([^"]*)"$`, steps.listingShouldNotContain)
}

type listingSteps struct {
	tc      TestContext
	domains []string
}

func (s *listingSteps) requestListing(_ context.Context, listing string) error {
	return s.load("/listings/" + listing)
}

func (s *listingSteps) requestListingAt(_ context.Context, listing, at string) error {
	return s.load("/listings/" + listing + "?at=" + url.QueryEscape(at))
}

func (s *listingSteps) load(path string) error {
	if err := s.tc.GET(path); err != nil {
		return err
	}
	// Listings return plain names; drift returns objects with an fqdn.
	var resp struct {
		Domains []any `json:"domains"`
	}
	if err := s.tc.DecodeResponse(&resp); err != nil {
		return err
	}
	s.domains = s.domains[:0]
	for _, d := range resp.Domains {
		switch v := d.(type) {
		case string:
			s.domains = append(s.domains, s.tc.Alias(v))
		case map[string]any:
			s.domains = append(s.domains, s.tc.Alias(fmt.Sprint(v["fqdn"])))
		}
	}
	return nil
}

func (s *listingSteps) listingShouldContain(_ context.Context, alias string) error {
	if !slices.Contains(s.domains, alias) {
		return fmt.Errorf("expected %q in listing %v", alias, s.domains)
	}
	return nil
}

func (s *listingSteps) listingShouldNotContain(_ context.Context, alias string) error {
	if slices.Contains(s.domains, alias) {
		return fmt.Errorf("did not expect %q in listing %v", alias, s.domains)
	}
	return nil
}
