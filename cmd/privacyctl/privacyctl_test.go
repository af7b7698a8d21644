package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"compliance/internal/anonymization/bulk"
	"compliance/internal/app"
	"compliance/internal/platform/config"
	"compliance/internal/subject"
	id "compliance/pkg/domain"
)

type fixture struct {
	app    *app.App
	actor  id.Actor
	seeded []id.SubjectID
}

func newFixture(t *testing.T, stale int) *fixture {
	t.Helper()
	a, err := app.Build(config.Server{}, prometheus.NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	f := &fixture{app: a, actor: id.NewActor(id.ActorID(uuid.New()), id.TenantID(uuid.New()))}
	for i := 0; i < stale; i++ {
		s := &subject.Subject{
			ID:                    id.SubjectID(uuid.New()),
			TenantID:              f.actor.TenantID,
			Name:                  "Jane",
			SurnameOrBusinessName: "Doe",
			Email:                 uuid.NewString() + "@acme.com",
			CreatedAt:             time.Now().AddDate(-3, 0, 0),
		}
		require.NoError(t, a.Directory.Create(context.Background(), s))
		f.seeded = append(f.seeded, s.ID)
	}
	return f
}

// run executes one command against the fixture. interrupts, when non-nil,
// replaces the process signal channel.
func (f *fixture) run(t *testing.T, interrupts chan os.Signal, args ...string) (string, error) {
	t.Helper()
	if interrupts == nil {
		interrupts = make(chan os.Signal)
	}
	root := newRootCmd(
		func(config.Server, *slog.Logger) (*app.App, error) { return f.app, nil },
		func() (<-chan os.Signal, func()) { return interrupts, func() {} },
	)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--tenant", f.actor.TenantID.String(), "--actor", f.actor.ID.String()}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCandidates(t *testing.T) {
	f := newFixture(t, 2)

	out, err := f.run(t, nil, "candidates", "-o", "json")
	require.NoError(t, err)

	var got []bulk.Candidate
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got, 2)
}

func TestCandidates_YAML(t *testing.T) {
	f := newFixture(t, 1)

	out, err := f.run(t, nil, "candidates", "-o", "yaml")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, f.seeded[0].String(), got[0]["subject_id"])
}

func TestCandidates_RequiresActor(t *testing.T) {
	f := newFixture(t, 0)
	root := newRootCmd(
		func(config.Server, *slog.Logger) (*app.App, error) { return f.app, nil },
		notifyInterrupt,
	)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"candidates", "--tenant", "nope"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a UUID")
}

func TestAnonymize(t *testing.T) {
	f := newFixture(t, 1)

	out, err := f.run(t, nil, "anonymize", f.seeded[0].String(), "--reason", "erasure request", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)

	_, err = f.run(t, nil, "anonymize", f.seeded[0].String(), "--reason", "again")
	require.Error(t, err)
}

func TestBulkAnonymize_IgnoresInterruptWithoutForceCancel(t *testing.T) {
	f := newFixture(t, 3)
	interrupts := make(chan os.Signal, 1)
	interrupts <- os.Interrupt

	out, err := f.run(t, interrupts, "bulk-anonymize", "--reason", "inactive")
	require.NoError(t, err)

	assert.Contains(t, out, "progress 1/3 failed=0")
	assert.Contains(t, out, "progress 3/3 failed=0")

	candidates, err := f.app.Bulk.SelectCandidates(context.Background(), f.actor)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestBulkAnonymize_ExplicitSubjects(t *testing.T) {
	f := newFixture(t, 2)

	out, err := f.run(t, nil, "bulk-anonymize", "--reason", "inactive",
		"--subjects", f.seeded[0].String()+","+uuid.NewString(), "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "progress 2/2 failed=1")
	assert.Contains(t, out, `"failed": 1`)
}

func TestBulkAnonymize_RejectsBadSubjectID(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.run(t, nil, "bulk-anonymize", "--reason", "x", "--subjects", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid subject id")
}

func TestWatchInterrupts(t *testing.T) {
	c := &cli{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	t.Run("force cancel stops the run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		interrupts := make(chan os.Signal, 1)
		interrupts <- os.Interrupt

		c.watchInterrupts(ctx, interrupts, true, cancel)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("interrupt is ignored otherwise", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		interrupts := make(chan os.Signal, 1)
		done := make(chan struct{})
		stopped := false
		go func() {
			c.watchInterrupts(ctx, interrupts, false, func() { stopped = true })
			close(done)
		}()
		interrupts <- os.Interrupt
		interrupts <- os.Interrupt
		cancel()
		<-done
		assert.False(t, stopped)
	})
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.run(t, nil, "anonymize", f.seeded[0].String(), "--reason", "erasure request")
	require.NoError(t, err)

	out, err := f.run(t, nil, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "METRIC")
	assert.Regexp(t, `audit_logs_last_30d\s+1`, out)
}

func TestAudit(t *testing.T) {
	f := newFixture(t, 2)
	_, err := f.run(t, nil, "anonymize", f.seeded[0].String(), "--reason", "erasure request")
	require.NoError(t, err)

	out, err := f.run(t, nil, "audit", "--action", "anonymization", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 1`)

	_, err = f.run(t, nil, "audit", "--from", "yesterday")
	require.Error(t, err)
}

func TestUnsupportedOutput(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.run(t, nil, "dashboard", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}
