package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycgate/internal/cases/models"
	"kycgate/pkg/platform/sentinel"
)

type EvidenceStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestEvidenceStoreSuite(t *testing.T) {
	suite.Run(t, new(EvidenceStoreSuite))
}

func (s *EvidenceStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *EvidenceStoreSuite) add(id string) *models.Evidence {
	ev := &models.Evidence{
		ID:         id,
		CaseID:     "INT-1",
		FileName:   id + ".pdf",
		StorageKey: models.StorageKey("INT-1", id, id+".pdf"),
		Status:     models.EvidenceInitiated,
		CreatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.Create(s.ctx, ev))
	return ev
}

func (s *EvidenceStoreSuite) TestFindByIDsKeepsRequestedOrder() {
	s.add("EVD-A")
	s.add("EVD-B")
	s.add("EVD-C")

	found, err := s.store.FindByIDs(s.ctx, []string{"EVD-C", "EVD-MISSING", "EVD-A"})
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal("EVD-C", found[0].ID)
	s.Equal("EVD-A", found[1].ID)
}

func (s *EvidenceStoreSuite) TestUpdate() {
	s.Run("persists verification", func() {
		ev := s.add("EVD-U")
		ev.Status = models.EvidenceVerified
		ev.Checksum = "abc"
		s.Require().NoError(s.store.Update(s.ctx, ev))

		found, err := s.store.FindByID(s.ctx, "EVD-U")
		s.Require().NoError(err)
		s.Equal(models.EvidenceVerified, found.Status)
		s.Equal("abc", found.Checksum)
	})

	s.Run("unknown evidence", func() {
		s.ErrorIs(s.store.Update(s.ctx, &models.Evidence{ID: "EVD-X"}), sentinel.ErrNotFound)
	})
}
