package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	AdminPOST(path string, body any) error
	AdminPUT(path string, body any) error
	StatusCode() int
	Body() []byte
	DecodeResponse(v any) error
	FQDN(alias string) string
	RememberDomain(alias, domainID string)
	DomainID(alias string) (string, error)
	RememberFlag(name, flagID string)
	FlagID(name string) (string, error)
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &lifecycleSteps{tc: tc}

	ctx.Step(`^the flag catalog is loaded$`, steps.flagCatalogIsLoaded)
	ctx.Step(`^the domain "([^"]*)" is in the catalog$`, steps.domainIsInCatalog)
	ctx.Step(`^the snapshot of "([^"]*)" says registered (true|false) and clear (true|false)$`, steps.setSnapshot)
	ctx.Step(`^"([^"]*)" becomes "(registered|unregistered)" at "([^"]*)"$`, steps.submitRegistration)
	ctx.Step(`^flag "([^"]*)" is set to (true|false) for "([^"]*)" at "([^"]*)"$`, steps.submitFlag)
	ctx.Step(`^flag "([^"]*)" is set to (true|false) for "([^"]*)" at "([^"]*)" until "([^"]*)"$`, steps.submitBoundedFlag)
	ctx.Step(`^I ask whether "([^"]*)" is registered at "([^"]*)"$`, steps.askRegistered)
	ctx.Step(`^I ask whether flag "([^"]*)" is active for "([^"]*)" at "([^"]*)"$`, steps.askFlag)
}

type lifecycleSteps struct {
	tc TestContext
}

func (s *lifecycleSteps) flagCatalogIsLoaded(context.Context) error {
	if err := s.tc.GET("/flags"); err != nil {
		return err
	}
	var resp struct {
		Flags []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"flags"`
	}
	if err := s.tc.DecodeResponse(&resp); err != nil {
		return err
	}
	for _, f := range resp.Flags {
		s.tc.RememberFlag(f.Name, f.ID)
	}
	return nil
}

func (s *lifecycleSteps) domainIsInCatalog(_ context.Context, alias string) error {
	if err := s.tc.AdminPOST("/domains", map[string]string{"fqdn": s.tc.FQDN(alias)}); err != nil {
		return err
	}
	if s.tc.StatusCode() != http.StatusCreated {
		return fmt.Errorf("register %s: status %d: %s", alias, s.tc.StatusCode(), string(s.tc.Body()))
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := s.tc.DecodeResponse(&resp); err != nil {
		return err
	}
	s.tc.RememberDomain(alias, resp.ID)
	return nil
}

func (s *lifecycleSteps) setSnapshot(_ context.Context, alias, registered, clear string) error {
	domainID, err := s.tc.DomainID(alias)
	if err != nil {
		return err
	}
	isRegistered, _ := strconv.ParseBool(registered)
	clearStatus, _ := strconv.ParseBool(clear)
	if err := s.tc.AdminPUT("/domains/"+domainID+"/snapshot", map[string]bool{
		"is_registered": isRegistered,
		"clear_status":  clearStatus,
	}); err != nil {
		return err
	}
	if s.tc.StatusCode() != http.StatusOK {
		return fmt.Errorf("set snapshot of %s: status %d: %s", alias, s.tc.StatusCode(), string(s.tc.Body()))
	}
	return nil
}

func (s *lifecycleSteps) submitRegistration(_ context.Context, alias, state, at string) error {
	domainID, err := s.tc.DomainID(alias)
	if err != nil {
		return err
	}
	return s.tc.AdminPOST("/domains/"+domainID+"/registration", map[string]string{
		"timestamp": at,
		"new_state": state,
	})
}

func (s *lifecycleSteps) submitFlag(ctx context.Context, flag, setTo, alias, at string) error {
	return s.submitBoundedFlag(ctx, flag, setTo, alias, at, "")
}

func (s *lifecycleSteps) submitBoundedFlag(_ context.Context, flag, setTo, alias, at, until string) error {
	domainID, err := s.tc.DomainID(alias)
	if err != nil {
		return err
	}
	flagID, err := s.tc.FlagID(flag)
	if err != nil {
		return err
	}
	value, _ := strconv.ParseBool(setTo)
	body := map[string]any{"timestamp": at, "set_to": value}
	if until != "" {
		body["valid_until"] = until
	}
	return s.tc.AdminPOST("/domains/"+domainID+"/flags/"+flagID, body)
}

func (s *lifecycleSteps) askRegistered(_ context.Context, alias, at string) error {
	domainID, err := s.tc.DomainID(alias)
	if err != nil {
		return err
	}
	return s.tc.GET("/domains/" + domainID + "/registration?at=" + url.QueryEscape(at))
}

func (s *lifecycleSteps) askFlag(_ context.Context, flag, alias, at string) error {
	domainID, err := s.tc.DomainID(alias)
	if err != nil {
		return err
	}
	flagID, err := s.tc.FlagID(flag)
	if err != nil {
		return err
	}
	return s.tc.GET("/domains/" + domainID + "/flags/" + flagID + "?at=" + url.QueryEscape(at))
}
