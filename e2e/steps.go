package e2e

import (
	"github.com/cucumber/godog"

	"kycgate/e2e/steps/cases"
	"kycgate/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (credentials, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register case lifecycle steps
	cases.RegisterSteps(ctx, tc)
}
