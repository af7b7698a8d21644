package anonymization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/requestcontext"
)

type anonymizerFunc func(ctx context.Context, actor id.Actor, subjectID id.SubjectID, reason string) (*Result, error)

func (f anonymizerFunc) Anonymize(ctx context.Context, actor id.Actor, subjectID id.SubjectID, reason string) (*Result, error) {
	return f(ctx, actor, subjectID, reason)
}

func serve(t *testing.T, svc Anonymizer, actor *id.Actor, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(svc, discardLogger()).Register(r)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if actor != nil {
		req = req.WithContext(requestcontext.WithActor(req.Context(), *actor))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Anonymize(t *testing.T) {
	actor := id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
	subjectID := id.NewSubjectID()
	target := "/subjects/" + subjectID.String() + "/anonymize"
	stamped := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		svc := anonymizerFunc(func(_ context.Context, got id.Actor, sid id.SubjectID, reason string) (*Result, error) {
			assert.Equal(t, actor, got)
			assert.Equal(t, subjectID, sid)
			assert.Equal(t, "erasure request", reason)
			return &Result{SubjectID: sid, Success: true, AnonymizedAt: &stamped}, nil
		})
		w := serve(t, svc, &actor, target, `{"reason":"  erasure request "}`)
		require.Equal(t, http.StatusOK, w.Code)

		var result Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Success)
		assert.Equal(t, subjectID, result.SubjectID)
	})

	t.Run("already anonymized is a conflict", func(t *testing.T) {
		svc := anonymizerFunc(func(context.Context, id.Actor, id.SubjectID, string) (*Result, error) {
			return &Result{}, dErrors.New(dErrors.CodeAlreadyAnonymized, "subject is already anonymized")
		})
		w := serve(t, svc, &actor, target, `{"reason":"again"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("reason required", func(t *testing.T) {
		svc := anonymizerFunc(func(context.Context, id.Actor, id.SubjectID, string) (*Result, error) {
			t.Fatal("service must not be called")
			return nil, nil
		})
		w := serve(t, svc, &actor, target, `{"reason":"   "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing actor", func(t *testing.T) {
		w := serve(t, anonymizerFunc(nil), nil, target, `{"reason":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad subject id", func(t *testing.T) {
		w := serve(t, anonymizerFunc(nil), &actor, "/subjects/nope/anonymize", `{"reason":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
