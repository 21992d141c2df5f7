package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauljones0/deal-radar/internal/health"
	"github.com/pauljones0/deal-radar/internal/lock"
	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/processor"
)

type fakeRunner struct {
	report processor.RunReport
	err    error
	calls  int
}

func (f *fakeRunner) Run(context.Context) (processor.RunReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeAuditor struct {
	report models.HealthReport
	err    error
	since  time.Time
}

func (f *fakeAuditor) Check(_ context.Context, since time.Time) (models.HealthReport, error) {
	f.since = since
	return f.report, f.err
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := do(t, NewServer(&fakeRunner{}, &fakeAuditor{}).Routes(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProcessDeals_Async(t *testing.T) {
	runner := &fakeRunner{}
	srv := NewServer(runner, &fakeAuditor{})
	done := make(chan error, 1)
	srv.done = done

	rec := do(t, srv.Routes(), http.MethodPost, "/process-deals")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("async run did not finish")
	}
	assert.Equal(t, 1, runner.calls)
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(context.Context) (processor.RunReport, error) {
	b.started <- struct{}{}
	<-b.release
	return processor.RunReport{}, nil
}

func TestProcessDeals_RejectsOverlappingRuns(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	srv := NewServer(runner, &fakeAuditor{})
	done := make(chan error, 1)
	srv.done = done
	h := srv.Routes()

	rec := do(t, h, http.MethodPost, "/process-deals")
	require.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("async run did not start")
	}

	rec = do(t, h, http.MethodPost, "/process-deals")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, h, http.MethodPost, "/process-deals?wait=true")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(runner.release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("async run did not finish")
	}

	rec = do(t, h, http.MethodPost, "/process-deals")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("second run did not start")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second run did not finish")
	}
}

func TestProcessDeals_Sync(t *testing.T) {
	report := processor.RunReport{Result: models.BatchResult{RunID: "r1", Processed: 3}}
	tests := []struct {
		name       string
		err        error
		health     models.HealthReport
		wantStatus int
	}{
		{"ok", nil, models.HealthReport{}, http.StatusOK},
		{"lock held", fmt.Errorf("run r1: %w: deal-radar:batch", lock.ErrLockHeld), models.HealthReport{}, http.StatusConflict},
		{"invariant violation", fmt.Errorf("run r1: %w", health.Err(models.HealthReport{ArchivedMutatedInWindow: 1})), models.HealthReport{ArchivedMutatedInWindow: 1}, http.StatusInternalServerError},
		{"other failure", errors.New("store down"), models.HealthReport{}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := report
			rep.Health = tt.health
			runner := &fakeRunner{report: rep, err: tt.err}

			rec := do(t, NewServer(runner, &fakeAuditor{}).Routes(), http.MethodPost, "/process-deals?wait=true")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body struct {
				Result     models.BatchResult `json:"result"`
				Violations []models.Violation `json:"violations"`
				Error      string             `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "r1", body.Result.RunID)
			assert.Equal(t, tt.err != nil, body.Error != "")
			if tt.health.Failed() {
				require.Len(t, body.Violations, 1)
				assert.Equal(t, models.InvariantArchivedFrozen, body.Violations[0].Invariant)
			}
		})
	}
}

func TestProcessDeals_RejectsGet(t *testing.T) {
	rec := do(t, NewServer(&fakeRunner{}, &fakeAuditor{}).Routes(), http.MethodGet, "/process-deals")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAudit(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("default window", func(t *testing.T) {
		aud := &fakeAuditor{report: models.HealthReport{EvidenceOverBound: 2}}
		srv := NewServer(&fakeRunner{}, aud)
		srv.now = func() time.Time { return now }

		rec := do(t, srv.Routes(), http.MethodGet, "/audit")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, now.Add(-24*time.Hour), aud.since)

		var body auditResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Failed)
		assert.Equal(t, 2, body.Report.EvidenceOverBound)
	})

	t.Run("explicit since and failure", func(t *testing.T) {
		aud := &fakeAuditor{report: models.HealthReport{ArchivedMutatedInWindow: 1}}
		rec := do(t, NewServer(&fakeRunner{}, aud).Routes(), http.MethodGet, "/audit?since=2026-04-30T00:00:00Z")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), aud.since)
	})

	t.Run("bad since", func(t *testing.T) {
		rec := do(t, NewServer(&fakeRunner{}, &fakeAuditor{}).Routes(), http.MethodGet, "/audit?since=yesterday")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("checker error", func(t *testing.T) {
		rec := do(t, NewServer(&fakeRunner{}, &fakeAuditor{err: errors.New("scan failed")}).Routes(), http.MethodGet, "/audit")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
