package anonymization

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"compliance/internal/anonymization/mocks"
	"compliance/internal/audit"
	"compliance/internal/subject"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	mockDir    *mocks.MockDirectory
	auditStore *audit.InMemoryStore
	service    *Service
	actor      id.Actor
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockDir = mocks.NewMockDirectory(s.ctrl)
	s.auditStore = audit.NewInMemoryStore()
	s.service = NewService(s.mockDir, audit.NewPublisher(s.auditStore), discardLogger())
	s.actor = id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestAnonymize_Errors() {
	ctx := context.Background()
	subjectID := id.NewSubjectID()

	s.T().Run("unauthenticated actor", func(t *testing.T) {
		_, err := s.service.Anonymize(ctx, id.Actor{}, subjectID, "retention")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.T().Run("nil subject id", func(t *testing.T) {
		result, err := s.service.Anonymize(ctx, s.actor, id.SubjectID{}, "retention")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.False(t, result.Success)
		assert.Equal(t, "subject id is required", result.Error)
	})

	s.T().Run("unknown subject", func(t *testing.T) {
		s.mockDir.EXPECT().GetByID(gomock.Any(), subjectID).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Anonymize(ctx, s.actor, subjectID, "retention")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.T().Run("subject of another tenant", func(t *testing.T) {
		s.mockDir.EXPECT().GetByID(gomock.Any(), subjectID).
			Return(&subject.Subject{ID: subjectID, TenantID: id.TenantID(uuid.New())}, nil)
		_, err := s.service.Anonymize(ctx, s.actor, subjectID, "retention")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.T().Run("lost race on write", func(t *testing.T) {
		s.mockDir.EXPECT().GetByID(gomock.Any(), subjectID).
			Return(&subject.Subject{ID: subjectID, TenantID: s.actor.TenantID, Name: "Jane"}, nil)
		s.mockDir.EXPECT().UpdateFields(gomock.Any(), subjectID, gomock.Any()).Return(nil, sentinel.ErrAlreadyAnonymized)
		_, err := s.service.Anonymize(ctx, s.actor, subjectID, "retention")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyAnonymized))
	})

	s.T().Run("driver failure does not leak detail", func(t *testing.T) {
		s.mockDir.EXPECT().GetByID(gomock.Any(), subjectID).
			Return(&subject.Subject{ID: subjectID, TenantID: s.actor.TenantID, Name: "Jane"}, nil)
		s.mockDir.EXPECT().UpdateFields(gomock.Any(), subjectID, gomock.Any()).
			Return(nil, errors.New("pq: connection reset"))
		result, err := s.service.Anonymize(ctx, s.actor, subjectID, "retention")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStore))
		assert.Equal(t, "failed to anonymize subject", result.Error)
	})

	s.T().Run("token source failure", func(t *testing.T) {
		svc := NewService(s.mockDir, nil, discardLogger(),
			WithTokenSource(func() (string, error) { return "", errors.New("entropy exhausted") }))
		s.mockDir.EXPECT().GetByID(gomock.Any(), subjectID).
			Return(&subject.Subject{ID: subjectID, TenantID: s.actor.TenantID, Name: "Jane"}, nil)
		_, err := svc.Anonymize(ctx, s.actor, subjectID, "retention")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Empty(s.auditStore.All())
}

func (s *ServiceSuite) TestAnonymize_WritesEveryScrubbedField() {
	subjectID := id.NewSubjectID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	var tokens int
	svc := NewService(s.mockDir, audit.NewPublisher(s.auditStore), discardLogger(),
		WithTokenSource(func() (string, error) {
			tokens++
			return strings.Repeat("a", tokens), nil
		}))

	s.mockDir.EXPECT().GetByID(gomock.Any(), subjectID).
		Return(&subject.Subject{ID: subjectID, TenantID: s.actor.TenantID, Name: "Jane"}, nil)
	s.mockDir.EXPECT().UpdateFields(gomock.Any(), subjectID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.SubjectID, fields subject.Fields) (*subject.Subject, error) {
			s.Len(fields, len(ScrubbedFields))
			s.Equal("ANONYMIZED_a", fields[subject.FieldName])
			s.Equal("ANONYMIZED_aa", fields[subject.FieldSurname])
			s.Equal("aaa@anonymized.local", fields[subject.FieldEmail])
			s.Nil(fields[subject.FieldPhone])
			s.Nil(fields[subject.FieldTaxID])
			s.Equal(now, fields[subject.FieldAnonymizedAt])
			return &subject.Subject{ID: subjectID, TenantID: s.actor.TenantID, AnonymizedAt: &now}, nil
		})

	result, err := svc.Anonymize(ctx, s.actor, subjectID, "retention expired")
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal(now, *result.AnonymizedAt)

	entries := s.auditStore.All()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionAnonymization, entries[0].ActionType)
	s.Equal(subjectID.String(), entries[0].RecordID)
	s.Equal("retention expired", entries[0].Purpose)
	s.Empty(entries[0].SubjectEmail)
}

// Round trips through the in-memory directory.

type fixture struct {
	dir        *subject.InMemoryDirectory
	auditStore *audit.InMemoryStore
	registry   *prometheus.Registry
	service    *Service
	actor      id.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:        subject.NewInMemoryDirectory(),
		auditStore: audit.NewInMemoryStore(),
		registry:   prometheus.NewRegistry(),
		actor:      id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New())),
	}
	f.service = NewService(f.dir, audit.NewPublisher(f.auditStore), discardLogger(),
		WithMetrics(NewMetrics(f.registry)))
	return f
}

func (f *fixture) seed(t *testing.T) *subject.Subject {
	t.Helper()
	s := &subject.Subject{
		ID:                    id.NewSubjectID(),
		TenantID:              f.actor.TenantID,
		Name:                  "Jane",
		SurnameOrBusinessName: "Doe",
		Email:                 "jane@acme.com",
		Phone:                 "+34 600 111 222",
		TaxID:                 "12345678Z",
		Address:               "Calle Mayor 1",
		CreatedAt:             time.Now().AddDate(-3, 0, 0),
	}
	require.NoError(t, f.dir.Create(context.Background(), s))
	return s
}

func TestAnonymize_ScrubsSubject(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(t)
	ctx := context.Background()

	result, err := f.service.Anonymize(ctx, f.actor, seeded.ID, "inactive customer")
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := f.dir.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.True(t, IsAnonymized(got))
	assert.True(t, strings.HasSuffix(got.Email, "@anonymized.local"))
	assert.True(t, strings.HasPrefix(got.Name, "ANONYMIZED_"))
	assert.True(t, strings.HasPrefix(got.SurnameOrBusinessName, "ANONYMIZED_"))
	assert.NotEqual(t, got.Name, got.SurnameOrBusinessName)
	assert.Empty(t, got.Phone)
	assert.Empty(t, got.TaxID)
	assert.Equal(t, result.AnonymizedAt, got.AnonymizedAt)

	assert.Len(t, f.auditStore.All(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.service.metrics.Anonymizations.WithLabelValues(OutcomeAnonymized)))
}

func TestAnonymize_Idempotent(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(t)
	ctx := context.Background()

	first, err := f.service.Anonymize(ctx, f.actor, seeded.ID, "erasure request")
	require.NoError(t, err)
	before, err := f.dir.GetByID(ctx, seeded.ID)
	require.NoError(t, err)

	second, err := f.service.Anonymize(ctx, f.actor, seeded.ID, "erasure request")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyAnonymized))
	assert.False(t, second.Success)
	assert.Equal(t, first.AnonymizedAt, second.AnonymizedAt)

	after, err := f.dir.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Len(t, f.auditStore.All(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.service.metrics.Anonymizations.WithLabelValues(OutcomeAlreadyAnonymized)))
}

func TestAnonymize_FailedWriteLeavesSubjectIntact(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(t)
	ctx := context.Background()
	f.dir.FailUpdatesFor(seeded.ID, errors.New("disk full"))

	result, err := f.service.Anonymize(ctx, f.actor, seeded.ID, "retention")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStore))
	assert.False(t, result.Success)
	assert.Nil(t, result.AnonymizedAt)

	got, err := f.dir.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Name)
	assert.Equal(t, "jane@acme.com", got.Email)
	assert.Nil(t, got.AnonymizedAt)

	assert.Empty(t, f.auditStore.All())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.service.metrics.Anonymizations.WithLabelValues(OutcomeFailed)))
}
