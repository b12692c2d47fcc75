package e2e

import (
	"github.com/cucumber/godog"

	"regwatch/e2e/steps/common"
	"regwatch/e2e/steps/lifecycle"
	"regwatch/e2e/steps/listing"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	lifecycle.RegisterSteps(ctx, tc)
	listing.RegisterSteps(ctx, tc)
}
