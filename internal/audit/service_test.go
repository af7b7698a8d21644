package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
	actor   id.Actor
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.service = NewService(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.actor = id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) seed(n int, at time.Time) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.store.Append(context.Background(), Entry{
			TenantID:   s.actor.TenantID,
			ActionType: ActionConsent,
			EntityName: EntityConsent,
			CreatedAt:  at.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func (s *ServiceSuite) TestList_Validation() {
	s.T().Run("missing actor is unauthorized", func(t *testing.T) {
		_, err := s.service.List(context.Background(), id.Actor{}, Filter{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.T().Run("unknown action type", func(t *testing.T) {
		_, err := s.service.List(context.Background(), s.actor, Filter{ActionType: "login"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.T().Run("inverted range", func(t *testing.T) {
		from := time.Now()
		to := from.Add(-time.Hour)
		_, err := s.service.List(context.Background(), s.actor, Filter{From: &from, To: &to})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestList_PageDefaults() {
	s.seed(60, time.Now().Add(-time.Hour))

	page, err := s.service.List(context.Background(), s.actor, Filter{})
	s.Require().NoError(err)
	s.Len(page.Entries, 50)
	s.Equal(60, page.Total)
	s.Equal(50, page.Limit)

	page, err = s.service.List(context.Background(), s.actor, Filter{Limit: 10_000, Offset: 55})
	s.Require().NoError(err)
	s.Len(page.Entries, 5)
	s.Equal(500, page.Limit)
}

func (s *ServiceSuite) TestCountSince() {
	now := time.Now()
	s.seed(3, now.Add(-40*24*time.Hour))
	s.seed(2, now.Add(-time.Hour))

	count, err := s.service.CountSince(context.Background(), s.actor.TenantID, now.Add(-30*24*time.Hour))
	require.NoError(s.T(), err)
	s.Equal(2, count)
}
