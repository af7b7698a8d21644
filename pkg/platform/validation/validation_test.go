package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "compliance/pkg/domain-errors"
)

type sampleRequest struct {
	SubjectEmail string `json:"subject_email" validate:"required,email"`
	RequestType  string `json:"request_type" validate:"required,oneof=access erasure"`
	Details      string `json:"details" validate:"notblank"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     sampleRequest
		message string
	}{
		{name: "missing email", req: sampleRequest{RequestType: "access", Details: "x"}, message: "subject_email is required"},
		{name: "malformed email", req: sampleRequest{SubjectEmail: "nope", RequestType: "access", Details: "x"}, message: "subject_email must be a valid email"},
		{name: "unknown type", req: sampleRequest{SubjectEmail: "a@b.es", RequestType: "audit", Details: "x"}, message: "request_type must be one of [access erasure]"},
		{name: "blank details", req: sampleRequest{SubjectEmail: "a@b.es", RequestType: "access", Details: "   "}, message: "details must not be blank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.req)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.EqualError(t, err, tt.message)
		})
	}

	assert.NoError(t, Validate(&sampleRequest{SubjectEmail: "a@b.es", RequestType: "erasure", Details: "ok"}))
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ClampPageSize(0))
	assert.Equal(t, 10, ClampPageSize(10))
	assert.Equal(t, MaxPageSize, ClampPageSize(MaxPageSize+1))
}
