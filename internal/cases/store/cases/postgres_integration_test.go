//go:build integration

package cases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycgate/internal/cases/models"
	"kycgate/internal/cases/store/cases"
	"kycgate/internal/cases/store/discrepancy"
	"kycgate/pkg/platform/sentinel"
	txcontext "kycgate/pkg/platform/tx"
	"kycgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	store         *cases.PostgresStore
	discrepancies *discrepancy.PostgresStore
	tx            *txcontext.Runner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = cases.NewPostgres(s.postgres.DB)
	s.discrepancies = discrepancy.NewPostgres(s.postgres.DB)
	s.tx = txcontext.NewRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "discrepancies", "evidence", "cases")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newCase() *models.Case {
	c, err := models.NewCase("CUST-1", "cip", "", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	c.FormPayload["full_name"] = "Jane Doe"
	c.EvidenceIDs = []string{"EVD-1", "EVD-2"}
	return c
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	c := s.newCase()
	s.Require().NoError(s.store.Create(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, found.Status)
	s.Equal("Jane Doe", found.FormPayload["full_name"])
	s.Equal([]string{"EVD-1", "EVD-2"}, found.EvidenceIDs)
	s.Empty(found.FinalCaseID)

	s.ErrorIs(s.store.Create(ctx, c), sentinel.ErrConflict)

	_, err = s.store.FindByID(ctx, "INT-MISSING")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFinalCaseIDIsNeverOverwritten() {
	ctx := context.Background()
	c := s.newCase()
	s.Require().NoError(s.store.Create(ctx, c))

	c.FinalCaseID = "KYC-20260101-AAAAAA"
	s.Require().NoError(s.store.Save(ctx, c))
	c.FinalCaseID = "KYC-20260101-BBBBBB"
	s.Require().NoError(s.store.Save(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("KYC-20260101-AAAAAA", found.FinalCaseID)
}

func (s *PostgresStoreSuite) TestCommitIsAtomic() {
	ctx := context.Background()
	c := s.newCase()
	c.Status = models.StatusValidating
	s.Require().NoError(s.store.Create(ctx, c))

	boom := errors.New("boom")
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d := models.NewDiscrepancy(c.ID, "dob", "DOB mismatch", models.SeverityCritical, time.Now())
		if err := s.discrepancies.Create(ctx, d); err != nil {
			return err
		}
		s.Require().NoError(c.TransitionTo(models.StatusActionRequired, time.Now()))
		if err := s.store.Save(ctx, c); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusValidating, found.Status)

	open, err := s.discrepancies.ListOpen(ctx, c.ID)
	s.Require().NoError(err)
	s.Empty(open)
}

func (s *PostgresStoreSuite) TestClearOpenDiscrepancies() {
	ctx := context.Background()
	c := s.newCase()
	s.Require().NoError(s.store.Create(ctx, c))

	d := models.NewDiscrepancy(c.ID, "dob", "DOB mismatch", models.SeverityCritical, time.Now())
	d.ExpectedValue = models.StrPtr("1983-02-06")
	d.ResolutionRequired = map[string]any{"action": "update_form"}
	s.Require().NoError(s.discrepancies.Create(ctx, d))

	open, err := s.discrepancies.ListOpen(ctx, c.ID)
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal("1983-02-06", *open[0].ExpectedValue)
	s.Nil(open[0].ReceivedValue)
	s.Equal("update_form", open[0].ResolutionRequired["action"])

	n, err := s.discrepancies.ClearOpen(ctx, c.ID, time.Now())
	s.Require().NoError(err)
	s.Equal(1, n)

	open, err = s.discrepancies.ListOpen(ctx, c.ID)
	s.Require().NoError(err)
	s.Empty(open)
}
