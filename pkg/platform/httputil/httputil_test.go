package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/requestcontext"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		hasMessage bool
	}{
		{"validation", dErrors.New(dErrors.CodeValidation, "subject_email is required"), http.StatusBadRequest, "validation_error", true},
		{"not found", dErrors.New(dErrors.CodeNotFound, "consent not found"), http.StatusNotFound, "not_found", true},
		{"invalid transition", dErrors.New(dErrors.CodeInvalidTransition, "request is completed"), http.StatusConflict, "invalid_transition", true},
		{"already anonymized", dErrors.New(dErrors.CodeAlreadyAnonymized, "subject already anonymized"), http.StatusConflict, "already_anonymized", true},
		{"unauthorized", dErrors.New(dErrors.CodeUnauthorized, "missing actor context"), http.StatusUnauthorized, "unauthorized", true},
		{"store error hides detail", dErrors.Wrap(errors.New("pq: relation missing"), dErrors.CodeStore, "failed to save"), http.StatusInternalServerError, "store_error", false},
		{"foreign error", errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
			_, has := body["error_description"]
			assert.Equal(t, tt.hasMessage, has)
		})
	}
}

type createBody struct {
	Email string `json:"email"`
}

func (b *createBody) Normalize() { b.Email = strings.ToLower(strings.TrimSpace(b.Email)) }

func (b *createBody) Validate() error {
	if b.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("normalizes and validates", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"  Ana@Example.ES "}`))
		w := httptest.NewRecorder()
		got, ok := DecodeAndPrepare[createBody](w, r, nil)
		require.True(t, ok)
		assert.Equal(t, "ana@example.es", got.Email)
	})

	t.Run("malformed body is bad request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[createBody](w, r, nil)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("plain validation error maps to validation_error", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":" "}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[createBody](w, r, nil)
		assert.False(t, ok)
		assert.Contains(t, w.Body.String(), "validation_error")
	})
}

func TestRequireActor(t *testing.T) {
	_, err := RequireActor(context.Background(), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	actor := id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))
	got, err := RequireActor(requestcontext.WithActor(context.Background(), actor), nil)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}
