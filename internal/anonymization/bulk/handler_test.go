package bulk

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "compliance/pkg/domain"
	"compliance/pkg/platform/middleware/request"
	"compliance/pkg/platform/validation"
	"compliance/pkg/requestcontext"
)

type stubService struct {
	candidates []Candidate
	ranWith    []id.SubjectID
	runErr     error
}

func (s *stubService) SelectCandidates(context.Context, id.Actor) ([]Candidate, error) {
	return s.candidates, nil
}

func (s *stubService) RunBulk(ctx context.Context, _ id.Actor, ids []id.SubjectID, _ string, progress func(Progress)) (*Result, error) {
	s.ranWith = ids
	result := &Result{Total: len(ids)}
	for range ids {
		result.Current++
		progress(Progress{Current: result.Current, Total: result.Total})
	}
	return result, s.runErr
}

func serveBulk(t *testing.T, svc Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(svc, discardLogger()).Register(r)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	actor := id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
	req = req.WithContext(requestcontext.WithActor(req.Context(), actor))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeStream(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var ev StreamEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestHandler_Candidates(t *testing.T) {
	svc := &stubService{candidates: []Candidate{{SubjectID: id.NewSubjectID()}, {SubjectID: id.NewSubjectID()}}}
	w := serveBulk(t, svc, http.MethodGet, "/anonymization/candidates", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp CandidatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.NotContains(t, w.Body.String(), "email")
}

func TestHandler_RunStreamsProgress(t *testing.T) {
	t.Run("selected candidates", func(t *testing.T) {
		svc := &stubService{candidates: []Candidate{{SubjectID: id.NewSubjectID()}, {SubjectID: id.NewSubjectID()}, {SubjectID: id.NewSubjectID()}}}
		w := serveBulk(t, svc, http.MethodPost, "/anonymization/bulk", `{"reason":"retention"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

		events := decodeStream(t, w.Body.String())
		require.Len(t, events, 4)
		assert.Equal(t, 1, events[0].Progress.Current)
		assert.Equal(t, 3, events[2].Progress.Current)
		require.NotNil(t, events[3].Result)
		assert.Equal(t, 3, events[3].Result.Total)
		assert.Empty(t, events[3].Error)
		assert.Len(t, svc.ranWith, 3)
	})

	t.Run("explicit ids", func(t *testing.T) {
		svc := &stubService{}
		subjectID := id.NewSubjectID()
		w := serveBulk(t, svc, http.MethodPost, "/anonymization/bulk",
			`{"reason":"erasure","subject_ids":["`+subjectID.String()+`"]}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []id.SubjectID{subjectID}, svc.ranWith)
	})

	t.Run("run error is the last line", func(t *testing.T) {
		svc := &stubService{candidates: []Candidate{{SubjectID: id.NewSubjectID()}}, runErr: context.Canceled}
		w := serveBulk(t, svc, http.MethodPost, "/anonymization/bulk", `{"reason":"retention"}`)
		events := decodeStream(t, w.Body.String())
		require.Len(t, events, 2)
		assert.Equal(t, context.Canceled.Error(), events[1].Error)
	})

	t.Run("bad ids rejected before streaming", func(t *testing.T) {
		w := serveBulk(t, &stubService{}, http.MethodPost, "/anonymization/bulk",
			`{"reason":"erasure","subject_ids":["not-a-uuid"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("reason required", func(t *testing.T) {
		w := serveBulk(t, &stubService{}, http.MethodPost, "/anonymization/bulk", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func runBodyWith(n int) string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = `"` + uuid.NewString() + `"`
	}
	return `{"reason":"retention expired","subject_ids":[` + strings.Join(ids, ",") + `]}`
}

func TestHandler_RunBodyLimit(t *testing.T) {
	serveLimited := func(svc Service, byPath map[string]int64, body string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Use(request.BodyLimitByPath(validation.MaxBodySize, byPath))
		NewHandler(svc, discardLogger()).Register(r)
		req := httptest.NewRequest(http.MethodPost, RunPath, strings.NewReader(body))
		actor := id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
		req = req.WithContext(requestcontext.WithActor(req.Context(), actor))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	bulkCap := map[string]int64{RunPath: validation.MaxBulkBodySize}

	t.Run("maximum id count fits the bulk cap", func(t *testing.T) {
		body := runBodyWith(validation.MaxBulkCandidates)
		require.Greater(t, len(body), validation.MaxBodySize)
		require.LessOrEqual(t, len(body), validation.MaxBulkBodySize)

		svc := &stubService{}
		w := serveLimited(svc, bulkCap, body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, svc.ranWith, validation.MaxBulkCandidates)
	})

	t.Run("default cap alone rejects the same body", func(t *testing.T) {
		svc := &stubService{}
		w := serveLimited(svc, nil, runBodyWith(validation.MaxBulkCandidates))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, svc.ranWith)
	})

	t.Run("one id over the count limit is rejected", func(t *testing.T) {
		svc := &stubService{}
		w := serveLimited(svc, bulkCap, runBodyWith(validation.MaxBulkCandidates+1))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, svc.ranWith)
	})
}
