package e2e

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against REGWATCH_E2E_URL.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("REGWATCH_E2E_URL")
	if baseURL == "" {
		t.Skip("REGWATCH_E2E_URL not set")
	}
	tc := NewTestContext(baseURL, os.Getenv("REGWATCH_E2E_ADMIN_TOKEN"), strconv.FormatInt(time.Now().UnixNano(), 36))

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature run failed")
	}
}
