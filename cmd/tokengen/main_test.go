package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "compliance/internal/jwt_token"
)

func TestTokengen_JSONTokenValidates(t *testing.T) {
	const tenantID = "550e8400-e29b-41d4-a716-446655440000"
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--tenant-id", tenantID, "--signing-key", "test-key", "--ttl", "1h", "--json"})
	require.NoError(t, cmd.Execute())

	var got tokenOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, tenantID, got.Claims["tenant_id"])
	assert.Equal(t, "custom", got.Usage["signing_key"])

	svc := jwttoken.NewJWTService("test-key", defaultIssuer, defaultAudience, time.Hour)
	claims, err := svc.ValidateToken(got.Token)
	require.NoError(t, err)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, got.Claims["actor_id"], claims.ActorID)
}

func TestTokengen_TextOutput(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--signing-key", devSigningKey})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Signing Key: dev")
	assert.Contains(t, out.String(), "Authorization: Bearer")
}

func TestTokengen_RejectsBadUUID(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--actor-id", "not-a-uuid"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--actor-id")
}
