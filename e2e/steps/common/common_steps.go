package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	GetResponseField(field string) (interface{}, error)
	StatusCode() int
	ResponseBody() []byte
	UseServiceToken()
	UseReviewerToken()
	ClearToken()
}

// RegisterSteps registers credential, health and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the gateway is healthy$`, steps.gatewayIsHealthy)
	ctx.Step(`^I call as the onboarding service$`, steps.callAsService)
	ctx.Step(`^I call as a reviewer$`, steps.callAsReviewer)
	ctx.Step(`^I call without credentials$`, steps.callAnonymously)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be present$`, steps.fieldShouldBePresent)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) gatewayIsHealthy(ctx context.Context) error {
	if err := s.tc.GET("/healthz"); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *commonSteps) callAsService(context.Context) error {
	s.tc.UseServiceToken()
	return nil
}

func (s *commonSteps) callAsReviewer(context.Context) error {
	s.tc.UseReviewerToken()
	return nil
}

func (s *commonSteps) callAnonymously(context.Context) error {
	s.tc.ClearToken()
	return nil
}

func (s *commonSteps) get(_ context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.StatusCode(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.ResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(_ context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBePresent(_ context.Context, field string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if v == nil || v == "" {
		return fmt.Errorf("field %s is empty", field)
	}
	return nil
}
