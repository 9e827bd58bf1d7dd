package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	c, err := NewClient(log, "test-token", srv.URL)
	require.NoError(t, err)

	return c
}

func TestTriggerWorkflowDispatch(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t,
			"/repos/internal-GlueOps/gha-aws-cleanup/actions/workflows/aws-nuke-account.yml/dispatches",
			r.URL.Path,
		)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body struct {
			Ref    string            `json:"ref"`
			Inputs map[string]string `json:"inputs"`
		}

		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refs/heads/main", body.Ref)
		assert.Equal(t, map[string]string{"AWS_ACCOUNT_NAME_TO_NUKE": "glueops-captain-foobar"}, body.Inputs)

		w.WriteHeader(http.StatusNoContent)
	}))

	status, err := c.TriggerWorkflowDispatch(
		context.Background(),
		"internal-GlueOps", "gha-aws-cleanup", "aws-nuke-account.yml", "refs/heads/main",
		map[string]string{"AWS_ACCOUNT_NAME_TO_NUKE": "glueops-captain-foobar"},
	)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTriggerWorkflowDispatchReturnsRejectedStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "missing workflow", status: http.StatusNotFound},
		{name: "invalid inputs", status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))

			status, err := c.TriggerWorkflowDispatch(
				context.Background(), "o", "r", "w.yml", "refs/heads/main", nil,
			)

			require.NoError(t, err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestTriggerWorkflowDispatchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)

	c, err := NewClient(log, "test-token", srv.URL)
	require.NoError(t, err)

	status, err := c.TriggerWorkflowDispatch(context.Background(), "o", "r", "w.yml", "refs/heads/main", nil)
	require.Error(t, err)
	assert.Zero(t, status)
}

func TestListWorkflowRuns(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/actions/workflows/w.yml/runs", r.URL.Path)
		assert.Equal(t, "workflow_dispatch", r.URL.Query().Get("event"))
		assert.Equal(t, ">="+created.Format(time.RFC3339), r.URL.Query().Get("created"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total_count": 1,
			"workflow_runs": [{
				"id": 42,
				"name": "nuke",
				"event": "workflow_dispatch",
				"status": "completed",
				"conclusion": "success",
				"html_url": "https://github.com/o/r/actions/runs/42",
				"created_at": "2026-03-01T12:00:05Z",
				"updated_at": "2026-03-01T12:03:00Z"
			}]
		}`))
	}))

	runs, err := c.ListWorkflowRuns(context.Background(), "o", "r", "w.yml", ListWorkflowRunsOpts{
		Event:     "workflow_dispatch",
		CreatedAt: &created,
	})

	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(42), runs[0].ID)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, "success", runs[0].Conclusion)
	assert.Equal(t, "https://github.com/o/r/actions/runs/42", runs[0].HTMLURL)
}

func TestResponsesUpdateRateLimit(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Zero(t, c.RateLimit().Limit)

	_, err := c.TriggerWorkflowDispatch(context.Background(), "o", "r", "w.yml", "refs/heads/main", nil)
	require.NoError(t, err)

	rate := c.RateLimit()
	assert.Equal(t, 5000, rate.Limit)
	assert.Equal(t, 7, rate.Remaining)
	assert.True(t, rate.Reset.Equal(reset))
	assert.True(t, rate.Exhausted(time.Now()))
}

func TestRateExhausted(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		rate Rate
		want bool
	}{
		{name: "unknown", rate: Rate{}, want: false},
		{name: "plenty left", rate: Rate{Limit: 5000, Remaining: 4000, Reset: now.Add(time.Hour)}, want: false},
		{name: "reserve only", rate: Rate{Limit: 5000, Remaining: 3, Reset: now.Add(time.Hour)}, want: true},
		{name: "already reset", rate: Rate{Limit: 5000, Remaining: 0, Reset: now.Add(-time.Second)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rate.Exhausted(now))
		})
	}
}
