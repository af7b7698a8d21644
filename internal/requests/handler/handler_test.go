package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"compliance/internal/requests/handler/mocks"
	"compliance/internal/requests/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	actor   id.Actor
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.actor = id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(requestcontext.WithActor(req.Context(), s.actor))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) TestCreate() {
	s.T().Run("created", func(t *testing.T) {
		s.service.EXPECT().CreateRequest(gomock.Any(), s.actor, models.CreateInput{
			Type:               models.TypePortability,
			SubjectEmail:       "jane@acme.com",
			Details:            "export everything",
			VerificationMethod: "dni",
		}).Return(&models.Request{ID: id.NewRequestID(), Type: models.TypePortability}, nil)

		w := s.do(http.MethodPost, "/requests",
			`{"request_type":"Portability","subject_email":"JANE@acme.com","request_details":"export everything","verification_method":"dni"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	s.T().Run("unknown type", func(t *testing.T) {
		w := s.do(http.MethodPost, "/requests", `{"request_type":"delete","subject_email":"jane@acme.com"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	s.T().Run("malformed body", func(t *testing.T) {
		w := s.do(http.MethodPost, "/requests", `{"request_type":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestUpdateStatus() {
	requestID := id.NewRequestID()

	s.T().Run("terminal request is a conflict", func(t *testing.T) {
		s.service.EXPECT().UpdateStatus(gomock.Any(), s.actor, requestID, models.TargetInProgress).
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "request is already completed"))

		w := s.do(http.MethodPatch, "/requests/"+requestID.String()+"/status", `{"status":"in_progress"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		var body map[string]string
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "invalid_transition", body["error"])
	})

	s.T().Run("unknown status is rejected before the service", func(t *testing.T) {
		w := s.do(http.MethodPatch, "/requests/"+requestID.String()+"/status", `{"status":"archived"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	s.T().Run("bad id", func(t *testing.T) {
		w := s.do(http.MethodPatch, "/requests/42/status", `{"status":"verified"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestRectification() {
	requestID := id.NewRequestID()

	s.T().Run("apply", func(t *testing.T) {
		s.service.EXPECT().ApplyRectification(gomock.Any(), s.actor, requestID).
			Return(&models.RectificationResult{RequestID: requestID.String(), Changed: map[string]string{"phone": "600333444"}}, nil)
		w := s.do(http.MethodPost, "/requests/"+requestID.String()+"/rectification/apply", "")
		assert.Equal(t, http.StatusOK, w.Code)
		var result models.RectificationResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "600333444", result.Changed["phone"])
	})

	s.T().Run("satisfied", func(t *testing.T) {
		s.service.EXPECT().RectificationSatisfied(gomock.Any(), s.actor, requestID).Return(true, nil)
		w := s.do(http.MethodGet, "/requests/"+requestID.String()+"/rectification", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"request_id":"`+requestID.String()+`","satisfied":true}`, w.Body.String())
	})

	s.T().Run("parse preview", func(t *testing.T) {
		w := s.do(http.MethodPost, "/rectification/parse",
			`{"description":"- Nombre Completo: Valor actual \"Ana Ruiz\" => Nuevo valor \"Ana María Ruiz\""}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"no_changes":false,"changes":{"name":"Ana","surname_or_business_name":"María Ruiz"}}`, w.Body.String())
	})

	s.T().Run("parse prose", func(t *testing.T) {
		w := s.do(http.MethodPost, "/rectification/parse", `{"description":"please fix my name"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"no_changes":true,"changes":{}}`, w.Body.String())
	})
}

func (s *HandlerSuite) TestList() {
	s.service.EXPECT().ListRequests(gomock.Any(), s.actor).Return([]*models.Request{{ID: id.NewRequestID()}}, nil)
	w := s.do(http.MethodGet, "/requests", "")
	s.Equal(http.StatusOK, w.Code)

	var body models.ListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Len(body.Requests, 1)
}
