package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ResolverSuite struct {
	suite.Suite
	ctx context.Context
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *ResolverSuite) TestKnownCategories() {
	r := NewResolver()

	s.Run("cip accepts identity documents", func() {
		rules, err := r.GetCategoryRules(s.ctx, "cip")
		s.Require().NoError(err)
		s.Equal([]string{"passport", "drivers_license", "national_id"}, rules.AllowedDocumentTypes)
		s.Contains(rules.ExtractionFields, "dob")
		s.Contains(rules.ExtractionFields, "document_number")
	})

	s.Run("edd adds source of funds declaration", func() {
		rules, err := r.GetCategoryRules(s.ctx, "edd")
		s.Require().NoError(err)
		s.Contains(rules.AllowedDocumentTypes, "sof_declaration")
		s.Contains(rules.ExtractionFields, "source_of_wealth")
	})

	s.Run("returned rules are copies", func() {
		rules, err := r.GetCategoryRules(s.ctx, "kyb")
		s.Require().NoError(err)
		rules.AllowedDocumentTypes[0] = "mutated"

		again, err := r.GetCategoryRules(s.ctx, "kyb")
		s.Require().NoError(err)
		s.Equal("certificate_incorporation", again.AllowedDocumentTypes[0])
	})
}

func (s *ResolverSuite) TestUnknownCategory() {
	s.Run("fail open returns empty rules", func() {
		rules, err := NewResolver().GetCategoryRules(s.ctx, "crypto_exchange")
		s.Require().NoError(err)
		s.Empty(rules.AllowedDocumentTypes)
		s.Empty(rules.ExtractionFields)
	})

	s.Run("fail closed returns ErrPolicyNotFound", func() {
		r := NewResolver(WithUnknownCategoryMode(FailClosed))
		_, err := r.GetCategoryRules(s.ctx, "crypto_exchange")
		s.ErrorIs(err, ErrPolicyNotFound)
	})

	s.Run("mode parsing defaults to fail open", func() {
		s.Equal(FailClosed, ParseUnknownCategoryMode("fail_closed"))
		s.Equal(FailOpen, ParseUnknownCategoryMode("strict"))
	})
}

func (s *ResolverSuite) TestRequirements() {
	r := NewResolver()
	req, err := r.GetRequirements(s.ctx, "kyb", "IN", "medium")
	s.Require().NoError(err)
	s.Equal(Version, req.PolicyVersion)
	s.Contains(req.RequiredFields, "registration_id")
	s.Equal("hard_fail", req.Controls["dob_mismatch"])
	s.Len(r.ListCategories(s.ctx), 5)
}
