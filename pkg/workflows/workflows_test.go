package workflows

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/github"
	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/glueops/tools-api/pkg/store"
	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchCall struct {
	owner, repo, workflowID, ref string
	inputs                       map[string]string
}

// fakeGitHub records dispatches and serves canned workflow runs.
type fakeGitHub struct {
	github.Client

	mu         sync.Mutex
	statusCode int
	err        error
	calls      []dispatchCall
	runs       []*github.WorkflowRun
	runsByID   map[int64]*github.WorkflowRun
	rate       github.Rate
	listed     int
}

func (f *fakeGitHub) RateLimit() github.Rate {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.rate
}

func (f *fakeGitHub) TriggerWorkflowDispatch(
	_ context.Context, owner, repo, workflowID, ref string, inputs map[string]string,
) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, dispatchCall{owner, repo, workflowID, ref, inputs})

	if f.err != nil {
		return 0, f.err
	}

	return f.statusCode, nil
}

func (f *fakeGitHub) ListWorkflowRuns(
	_ context.Context, _, _, _ string, _ github.ListWorkflowRunsOpts,
) ([]*github.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listed++

	return f.runs, nil
}

func (f *fakeGitHub) GetWorkflowRun(_ context.Context, _, _ string, runID int64) (*github.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	run, ok := f.runsByID[runID]
	if !ok {
		return nil, trace.NotFound("run %d", runID)
	}

	return run, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st := store.NewSQLiteStore(testLogger(), filepath.Join(t.TempDir(), "tools-api.db"))
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })
	require.NoError(t, st.Migrate(context.Background()))

	return st
}

func testGitHubConfig(t *testing.T) *config.GitHubConfig {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	return &cfg.GitHub
}

func TestDispatchAWSAccountNuke(t *testing.T) {
	gh := &fakeGitHub{statusCode: http.StatusNoContent}
	st := newTestStore(t)
	d := NewDispatcher(testLogger(), testGitHubConfig(t), gh, st, metrics.New(prometheus.NewRegistry()))

	req := AWSAccountNuke("glueops-captain-foobar")
	req.RequestedBy = "ops"

	receipt, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, gh.calls, 1)
	assert.Equal(t, dispatchCall{
		owner:      "internal-GlueOps",
		repo:       "gha-aws-cleanup",
		workflowID: "aws-nuke-account.yml",
		ref:        "refs/heads/main",
		inputs:     map[string]string{"AWS_ACCOUNT_NAME_TO_NUKE": "glueops-captain-foobar"},
	}, gh.calls[0])

	assert.Equal(t, http.StatusNoContent, receipt.StatusCode)
	assert.True(t, receipt.Accepted())
	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t,
		"View all jobs: https://github.com/internal-GlueOps/gha-aws-cleanup/actions/workflows/aws-nuke-account.yml",
		receipt.Message(),
	)

	record, err := d.Get(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DispatchStatusTriggered, record.Status)
	assert.Equal(t, "ops", record.RequestedBy)
}

func TestDispatchRejectedIsRecorded(t *testing.T) {
	gh := &fakeGitHub{statusCode: http.StatusUnprocessableEntity}
	st := newTestStore(t)
	d := NewDispatcher(testLogger(), testGitHubConfig(t), gh, st, nil)

	receipt, err := d.Dispatch(context.Background(), CaptainDomainNuke("nonprod.foobar.onglueops.rocks"))
	require.NoError(t, err)
	assert.False(t, receipt.Accepted())
	assert.Equal(t, http.StatusUnprocessableEntity, receipt.StatusCode)

	record, err := d.Get(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DispatchStatusRejected, record.Status)
	assert.NotNil(t, record.CompletedAt)
}

func TestDispatchGitHubOrgResetInputs(t *testing.T) {
	gh := &fakeGitHub{statusCode: http.StatusNoContent}
	d := NewDispatcher(testLogger(), testGitHubConfig(t), gh, nil, nil)

	_, err := d.Dispatch(context.Background(), GitHubOrgReset(OrgReset{
		CaptainDomain:          "nonprod.foobar.onglueops.rocks",
		DeleteAllExistingRepos: true,
	}))
	require.NoError(t, err)

	require.Len(t, gh.calls, 1)
	assert.Equal(t, "reset-github-organization.yml", gh.calls[0].workflowID)
	assert.Equal(t, map[string]string{
		"CAPTAIN_DOMAIN":            "nonprod.foobar.onglueops.rocks",
		"DELETE_ALL_EXISTING_REPOS": "true",
		"CUSTOM_DOMAIN":             "",
		"ENABLE_CUSTOM_DOMAIN":      "false",
	}, gh.calls[0].inputs)
}

func TestDispatchUnknownWorkflow(t *testing.T) {
	gh := &fakeGitHub{statusCode: http.StatusNoContent}
	d := NewDispatcher(testLogger(), testGitHubConfig(t), gh, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{Workflow: "nope"})
	require.Error(t, err)
	assert.True(t, trace.IsBadParameter(err))
	assert.Empty(t, gh.calls)
}

func TestDispatchTransportError(t *testing.T) {
	gh := &fakeGitHub{err: assert.AnError}
	d := NewDispatcher(testLogger(), testGitHubConfig(t), gh, nil, nil)

	_, err := d.Dispatch(context.Background(), AWSAccountNuke("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetMissingDispatch(t *testing.T) {
	d := NewDispatcher(testLogger(), testGitHubConfig(t), &fakeGitHub{}, newTestStore(t), nil)

	_, err := d.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, trace.IsNotFound(err))
}

func newTestTracker(st store.Store, gh github.Client, now time.Time) *tracker {
	tr := NewTracker(testLogger(), st, gh, nil, time.Second, 5*time.Minute).(*tracker)
	tr.now = func() time.Time { return now }

	return tr
}

func TestTrackerPairsOldestUnclaimedRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	triggered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &store.Dispatch{
		ID: "first", Workflow: config.WorkflowAWSAccountNuke, Owner: "o", Repo: "r", WorkflowID: "w.yml",
		Ref: "refs/heads/main", StatusCode: 204, Status: store.DispatchStatusTriggered,
		Inputs:      map[string]string{InputAWSAccountNameToNuke: "a"},
		TriggeredAt: triggered, CreatedAt: triggered, UpdatedAt: triggered,
	}
	second := &store.Dispatch{
		ID: "second", Workflow: config.WorkflowAWSAccountNuke, Owner: "o", Repo: "r", WorkflowID: "w.yml",
		Ref: "refs/heads/main", StatusCode: 204, Status: store.DispatchStatusTriggered,
		Inputs:      map[string]string{InputAWSAccountNameToNuke: "b"},
		TriggeredAt: triggered.Add(time.Second), CreatedAt: triggered.Add(time.Second), UpdatedAt: triggered,
	}

	require.NoError(t, st.CreateDispatch(ctx, first))
	require.NoError(t, st.CreateDispatch(ctx, second))

	older := &github.WorkflowRun{ID: 10, Status: "completed", Conclusion: "success", HTMLURL: "u10", CreatedAt: triggered.Add(2 * time.Second)}
	newer := &github.WorkflowRun{ID: 11, Status: "in_progress", HTMLURL: "u11", CreatedAt: triggered.Add(3 * time.Second)}
	stale := &github.WorkflowRun{ID: 9, Status: "completed", Conclusion: "success", CreatedAt: triggered.Add(-time.Hour)}

	gh := &fakeGitHub{
		runs:     []*github.WorkflowRun{newer, stale, older},
		runsByID: map[int64]*github.WorkflowRun{10: older, 11: newer, 9: stale},
	}

	tr := newTestTracker(st, gh, triggered.Add(time.Minute))
	require.NoError(t, tr.trackRuns(ctx))

	gotFirst, err := st.GetDispatch(ctx, "first")
	require.NoError(t, err)
	require.NotNil(t, gotFirst.RunID)
	assert.Equal(t, int64(10), *gotFirst.RunID)
	assert.Equal(t, store.DispatchStatusCompleted, gotFirst.Status)
	assert.Equal(t, "success", gotFirst.Conclusion)

	gotSecond, err := st.GetDispatch(ctx, "second")
	require.NoError(t, err)
	require.NotNil(t, gotSecond.RunID)
	assert.Equal(t, int64(11), *gotSecond.RunID)
	assert.Equal(t, store.DispatchStatusRunning, gotSecond.Status)

	tenant := "a"
	entries, total, err := st.ListAuditEntries(ctx, store.AuditQueryOpts{Tenant: &tenant})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, store.AuditActionWorkflowFinished, entries[0].Action)
}

func TestTrackerFailsDispatchWithoutRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	triggered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreateDispatch(ctx, &store.Dispatch{
		ID: "lonely", Workflow: config.WorkflowCaptainDomainNuke, Owner: "o", Repo: "r", WorkflowID: "w.yml",
		Ref: "refs/heads/main", StatusCode: 204, Status: store.DispatchStatusTriggered,
		TriggeredAt: triggered, CreatedAt: triggered, UpdatedAt: triggered,
	}))

	gh := &fakeGitHub{}

	// Within the timeout nothing changes.
	require.NoError(t, newTestTracker(st, gh, triggered.Add(time.Minute)).trackRuns(ctx))

	got, err := st.GetDispatch(ctx, "lonely")
	require.NoError(t, err)
	assert.Equal(t, store.DispatchStatusTriggered, got.Status)

	require.NoError(t, newTestTracker(st, gh, triggered.Add(6*time.Minute)).trackRuns(ctx))

	got, err = st.GetDispatch(ctx, "lonely")
	require.NoError(t, err)
	assert.Equal(t, store.DispatchStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "not found")
}

func TestTrackerPausesOnLowQuota(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	triggered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreateDispatch(ctx, &store.Dispatch{
		ID: "waiting", Workflow: config.WorkflowAWSAccountNuke, Owner: "o", Repo: "r", WorkflowID: "w.yml",
		Ref: "refs/heads/main", StatusCode: 204, Status: store.DispatchStatusTriggered,
		TriggeredAt: triggered, CreatedAt: triggered, UpdatedAt: triggered,
	}))

	gh := &fakeGitHub{rate: github.Rate{Limit: 5000, Remaining: 2, Reset: triggered.Add(time.Hour)}}

	// Far past the run timeout, but the quota is drained so nothing is touched.
	require.NoError(t, newTestTracker(st, gh, triggered.Add(10*time.Minute)).trackRuns(ctx))
	assert.Zero(t, gh.listed)

	got, err := st.GetDispatch(ctx, "waiting")
	require.NoError(t, err)
	assert.Equal(t, store.DispatchStatusTriggered, got.Status)
}

func TestTrackerSkipsRunOfFinishedDispatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	triggered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runID := int64(10)
	completed := triggered.Add(10 * time.Second)

	require.NoError(t, st.CreateDispatch(ctx, &store.Dispatch{
		ID: "a", Workflow: config.WorkflowAWSAccountNuke, Owner: "o", Repo: "r", WorkflowID: "w.yml",
		Ref: "refs/heads/main", StatusCode: 204, Status: store.DispatchStatusFailed,
		RunID: &runID, RunURL: "u10", Conclusion: "failure", CompletedAt: &completed,
		TriggeredAt: triggered, CreatedAt: triggered, UpdatedAt: completed,
	}))
	require.NoError(t, st.CreateDispatch(ctx, &store.Dispatch{
		ID: "b", Workflow: config.WorkflowAWSAccountNuke, Owner: "o", Repo: "r", WorkflowID: "w.yml",
		Ref: "refs/heads/main", StatusCode: 204, Status: store.DispatchStatusTriggered,
		TriggeredAt: triggered.Add(20 * time.Second), CreatedAt: triggered.Add(20 * time.Second),
		UpdatedAt: triggered.Add(20 * time.Second),
	}))

	// Only a's run is listed; b's run has not shown up yet.
	old := &github.WorkflowRun{
		ID: 10, Status: "completed", Conclusion: "failure", HTMLURL: "u10", CreatedAt: triggered.Add(2 * time.Second),
	}

	gh := &fakeGitHub{
		runs:     []*github.WorkflowRun{old},
		runsByID: map[int64]*github.WorkflowRun{10: old},
	}

	require.NoError(t, newTestTracker(st, gh, triggered.Add(time.Minute)).trackRuns(ctx))
	assert.Equal(t, 1, gh.listed)

	got, err := st.GetDispatch(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, store.DispatchStatusTriggered, got.Status)
	assert.Nil(t, got.RunID)
	assert.Empty(t, got.Conclusion)

	// b pairs with its own run once it appears.
	own := &github.WorkflowRun{ID: 12, Status: "in_progress", HTMLURL: "u12", CreatedAt: triggered.Add(21 * time.Second)}
	gh.runs = []*github.WorkflowRun{own, old}
	gh.runsByID[12] = own

	require.NoError(t, newTestTracker(st, gh, triggered.Add(2*time.Minute)).trackRuns(ctx))

	got, err = st.GetDispatch(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, got.RunID)
	assert.Equal(t, int64(12), *got.RunID)
	assert.Equal(t, store.DispatchStatusRunning, got.Status)
}

func TestRunClaimsFloor(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := &runClaims{ids: map[int64]struct{}{}}
	assert.True(t, c.floor(base).IsZero())

	c.claim(1, base)
	c.claim(2, base.Add(time.Minute))

	assert.True(t, c.claimed(2))
	assert.False(t, c.claimed(3))
	assert.Equal(t, base, c.floor(base.Add(30*time.Second)))
	assert.Equal(t, base.Add(time.Minute), c.floor(base.Add(time.Hour)))
	assert.True(t, c.floor(base).IsZero())
}
