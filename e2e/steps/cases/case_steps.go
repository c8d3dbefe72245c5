package cases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	PUT(path, contentType string, body []byte) error
	GET(path string) error
	GetResponseField(field string) (interface{}, error)
	StatusCode() int
	ResponseBody() []byte
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers case lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &caseSteps{tc: tc}

	ctx.Step(`^I open a "([^"]*)" case for customer "([^"]*)"$`, steps.openCase)
	ctx.Step(`^I attach "([^"]*)" containing:$`, steps.attachEvidence)
	ctx.Step(`^I submit the case with consent and dob "([^"]*)"$`, steps.submitWithConsent)
	ctx.Step(`^I submit the case without consent$`, steps.submitWithoutConsent)
	ctx.Step(`^the case should reach status "([^"]*)" within (\d+) seconds$`, steps.waitForStatus)
	ctx.Step(`^I fetch the case$`, steps.fetchCase)
	ctx.Step(`^I POST to the case "([^"]*)" endpoint$`, steps.postCaseAction)
	ctx.Step(`^I decide "([^"]*)" because "([^"]*)"$`, steps.decide)
	ctx.Step(`^I read the case audit trail$`, steps.readAudit)

	ctx.Step(`^the case should have an open discrepancy on a field containing "([^"]*)"$`, steps.discrepancyOnField)
	ctx.Step(`^the case should have a final case id$`, steps.hasFinalCaseID)
	ctx.Step(`^the audit trail should record a transition to "([^"]*)"$`, steps.auditHasTransition)
}

type caseSteps struct {
	tc TestContext
}

func (s *caseSteps) caseID() (string, error) {
	return s.tc.Saved("case_id")
}

func (s *caseSteps) openCase(_ context.Context, category, customer string) error {
	if err := s.tc.POST("/v1/cases", map[string]interface{}{
		"customer_id": customer,
		"category_id": category,
	}); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("open case: status %d: %s", s.tc.StatusCode(), s.tc.ResponseBody())
	}
	id, err := s.tc.GetResponseField("case_id")
	if err != nil {
		return err
	}
	s.tc.Save("case_id", fmt.Sprint(id))
	return nil
}

func (s *caseSteps) attachEvidence(_ context.Context, fileName string, content *godog.DocString) error {
	caseID, err := s.caseID()
	if err != nil {
		return err
	}
	if err := s.tc.POST("/v1/cases/"+caseID+"/evidence", map[string]interface{}{
		"file_name":    fileName,
		"content_type": "application/pdf",
	}); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("register evidence: status %d: %s", s.tc.StatusCode(), s.tc.ResponseBody())
	}
	id, err := s.tc.GetResponseField("evidence_id")
	if err != nil {
		return err
	}
	evidenceID := fmt.Sprint(id)

	if err := s.tc.PUT("/v1/evidence/"+evidenceID+"/content", "application/pdf", []byte(content.Content)); err != nil {
		return err
	}
	if s.tc.StatusCode() != 200 {
		return fmt.Errorf("upload content: status %d: %s", s.tc.StatusCode(), s.tc.ResponseBody())
	}

	ids, _ := s.tc.Saved("evidence_ids")
	if ids != "" {
		ids += ","
	}
	s.tc.Save("evidence_ids", ids+evidenceID)
	return nil
}

func (s *caseSteps) submit(consent bool, dob string) error {
	caseID, err := s.caseID()
	if err != nil {
		return err
	}
	ids, err := s.tc.Saved("evidence_ids")
	if err != nil {
		return err
	}
	return s.tc.POST("/v1/cases/"+caseID+"/submit", map[string]interface{}{
		"consent": consent,
		"customer_details": map[string]interface{}{
			"full_name":   "MANOJ KUMAR SHARMA",
			"dob":         dob,
			"citizenship": "INDIAN",
			"address":     map[string]interface{}{"city": "DELHI", "country": "INDIA"},
		},
		"evidence_ids": strings.Split(ids, ","),
	})
}

func (s *caseSteps) submitWithConsent(_ context.Context, dob string) error {
	return s.submit(true, dob)
}

func (s *caseSteps) submitWithoutConsent(context.Context) error {
	return s.submit(false, "1983-02-06")
}

func (s *caseSteps) fetchCase(context.Context) error {
	caseID, err := s.caseID()
	if err != nil {
		return err
	}
	return s.tc.GET("/v1/cases/" + caseID)
}

// waitForStatus polls the status endpoint; validation runs asynchronously.
func (s *caseSteps) waitForStatus(ctx context.Context, want string, seconds int) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	var last string
	for time.Now().Before(deadline) {
		if err := s.fetchCase(ctx); err != nil {
			return err
		}
		status, err := s.tc.GetResponseField("status")
		if err != nil {
			return err
		}
		last = fmt.Sprint(status)
		if last == want {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("case still %s after %ds, wanted %s", last, seconds, want)
}

func (s *caseSteps) postCaseAction(_ context.Context, action string) error {
	caseID, err := s.caseID()
	if err != nil {
		return err
	}
	return s.tc.POST("/v1/cases/"+caseID+"/"+action, map[string]interface{}{})
}

func (s *caseSteps) decide(_ context.Context, decision, reason string) error {
	caseID, err := s.caseID()
	if err != nil {
		return err
	}
	return s.tc.POST("/v1/cases/"+caseID+"/review/decision", map[string]interface{}{
		"decision": decision,
		"reason":   reason,
	})
}

func (s *caseSteps) readAudit(context.Context) error {
	caseID, err := s.caseID()
	if err != nil {
		return err
	}
	return s.tc.GET("/v1/cases/" + caseID + "/audit")
}

func (s *caseSteps) discrepancyOnField(_ context.Context, fragment string) error {
	raw, err := s.tc.GetResponseField("discrepancies")
	if err != nil {
		return err
	}
	items, _ := raw.([]interface{})
	for _, item := range items {
		d, _ := item.(map[string]interface{})
		if strings.Contains(fmt.Sprint(d["field"]), fragment) && d["status"] == "OPEN" {
			return nil
		}
	}
	return fmt.Errorf("no open discrepancy on a field containing %q: %s", fragment, s.tc.ResponseBody())
}

func (s *caseSteps) hasFinalCaseID(context.Context) error {
	v, err := s.tc.GetResponseField("final_case_id")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(fmt.Sprint(v), "KYC-") {
		return fmt.Errorf("unexpected final case id %v", v)
	}
	return nil
}

func (s *caseSteps) auditHasTransition(_ context.Context, status string) error {
	var events []map[string]interface{}
	if err := json.Unmarshal(s.tc.ResponseBody(), &events); err != nil {
		return fmt.Errorf("decode audit trail: %w", err)
	}
	for _, e := range events {
		if e["to_status"] == status {
			return nil
		}
	}
	return fmt.Errorf("no transition to %s in audit trail", status)
}
