package workflows

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glueops/tools-api/pkg/github"
	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/glueops/tools-api/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// runSearchBuffer absorbs clock drift between us and GitHub.
const runSearchBuffer = 30 * time.Second

// Tracker follows triggered dispatches until their GitHub run finishes.
type Tracker interface {
	Start(ctx context.Context) error
	Stop() error
}

// tracker implements Tracker.
type tracker struct {
	log        logrus.FieldLogger
	store      store.Store
	gh         github.Client
	metrics    *metrics.Metrics
	interval   time.Duration
	runTimeout time.Duration
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Ensure tracker implements Tracker.
var _ Tracker = (*tracker)(nil)

// NewTracker creates a new run tracker.
func NewTracker(
	log logrus.FieldLogger,
	st store.Store,
	gh github.Client,
	m *metrics.Metrics,
	interval, runTimeout time.Duration,
) Tracker {
	return &tracker{
		log:        log.WithField("component", "tracker"),
		store:      st,
		gh:         gh,
		metrics:    m,
		interval:   interval,
		runTimeout: runTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the tracking loop.
func (t *tracker) Start(ctx context.Context) error {
	if t.interval <= 0 {
		t.log.Info("Run tracking is disabled")

		return nil
	}

	t.log.WithField("interval", t.interval).Info("Starting run tracker")

	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)

	go t.trackRunsLoop(ctx)

	return nil
}

// Stop stops the tracker.
func (t *tracker) Stop() error {
	t.log.Info("Stopping run tracker")

	if t.cancel != nil {
		t.cancel()
	}

	t.wg.Wait()

	return nil
}

func (t *tracker) trackRunsLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.trackRuns(ctx); err != nil {
				t.log.WithError(err).Error("Track runs failed")
			}
		}
	}
}

// trackRuns updates the status of triggered/running dispatches.
func (t *tracker) trackRuns(ctx context.Context) error {
	if rate := t.gh.RateLimit(); rate.Exhausted(t.now()) {
		t.log.WithField("reset", rate.Reset).Warn("GitHub quota low, skipping run tracking until reset")

		return nil
	}

	dispatches, err := t.store.ListDispatchesByStatus(ctx, store.DispatchStatusTriggered, store.DispatchStatusRunning)
	if err != nil {
		return fmt.Errorf("listing dispatches: %w", err)
	}

	// Runs already paired with any dispatch, finished or not, must not be
	// handed to another one. Claims are loaded once per workflow per pass.
	claims := make(map[string]*runClaims)

	for _, d := range dispatches {
		var c *runClaims

		if d.RunID == nil || *d.RunID == 0 {
			c, err = t.claimsFor(ctx, claims, d)
			if err != nil {
				t.log.WithError(err).WithField("dispatch_id", d.ID).Error("Failed to load claimed runs")

				continue
			}
		}

		if err := t.trackDispatch(ctx, d, c); err != nil {
			t.log.WithError(err).WithField("dispatch_id", d.ID).Error("Failed to track dispatch")
		}
	}

	return nil
}

// runClaims holds the runs of one workflow that receipts already own.
type runClaims struct {
	ids      map[int64]struct{}
	pairedAt []time.Time
}

func (c *runClaims) claimed(runID int64) bool {
	_, ok := c.ids[runID]

	return ok
}

func (c *runClaims) claim(runID int64, triggeredAt time.Time) {
	c.ids[runID] = struct{}{}
	c.pairedAt = append(c.pairedAt, triggeredAt)
}

// floor returns the trigger time of the latest paired receipt triggered
// before at. Runs created earlier than that belong to older receipts.
func (c *runClaims) floor(at time.Time) time.Time {
	var latest time.Time

	for _, p := range c.pairedAt {
		if p.Before(at) && p.After(latest) {
			latest = p
		}
	}

	return latest
}

func (t *tracker) claimsFor(ctx context.Context, claims map[string]*runClaims, d *store.Dispatch) (*runClaims, error) {
	key := d.Owner + "/" + d.Repo + "/" + d.WorkflowID

	if c, ok := claims[key]; ok {
		return c, nil
	}

	paired, err := t.store.ListPairedDispatches(ctx, d.Owner, d.Repo, d.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("listing paired dispatches: %w", err)
	}

	c := &runClaims{ids: make(map[int64]struct{}, len(paired))}

	for _, p := range paired {
		if p.RunID != nil && *p.RunID != 0 {
			c.claim(*p.RunID, p.TriggeredAt)
		}
	}

	claims[key] = c

	return c, nil
}

// trackDispatch advances a single dispatch. claims is only consulted while
// the dispatch has no run yet.
func (t *tracker) trackDispatch(ctx context.Context, d *store.Dispatch, claims *runClaims) error {
	log := t.log.WithFields(logrus.Fields{
		"dispatch_id": d.ID,
		"workflow":    d.Workflow,
	})

	if d.RunID == nil || *d.RunID == 0 {
		run, err := t.findWorkflowRun(ctx, d, claims)
		if err != nil {
			log.WithError(err).Debug("Could not find workflow run yet")

			if t.now().Sub(d.TriggeredAt) > t.runTimeout {
				return t.finish(ctx, d, store.DispatchStatusFailed, "",
					fmt.Sprintf("Workflow run not found after %s", t.runTimeout))
			}

			return nil
		}

		d.RunID = &run.ID
		d.RunURL = run.HTMLURL

		if err := t.store.UpdateDispatch(ctx, d); err != nil {
			return fmt.Errorf("updating dispatch with run ID: %w", err)
		}

		claims.claim(run.ID, d.TriggeredAt)

		log.WithFields(logrus.Fields{
			"run_id":  run.ID,
			"run_url": run.HTMLURL,
		}).Info("Found workflow run")
	}

	run, err := t.gh.GetWorkflowRun(ctx, d.Owner, d.Repo, *d.RunID)
	if err != nil {
		return fmt.Errorf("getting workflow run: %w", err)
	}

	switch run.Status {
	case "completed":
		switch run.Conclusion {
		case "success":
			return t.finish(ctx, d, store.DispatchStatusCompleted, run.Conclusion, "")
		case "cancelled":
			return t.finish(ctx, d, store.DispatchStatusCancelled, run.Conclusion, "")
		default:
			return t.finish(ctx, d, store.DispatchStatusFailed, run.Conclusion,
				fmt.Sprintf("Workflow %s", run.Conclusion))
		}
	case "queued", "waiting", "requested", "pending":
		log.Debug("Workflow run is queued")
	default:
		if d.Status == store.DispatchStatusTriggered {
			d.Status = store.DispatchStatusRunning

			if err := t.store.UpdateDispatch(ctx, d); err != nil {
				return fmt.Errorf("marking dispatch as running: %w", err)
			}

			log.Info("Workflow run is now running")
		}
	}

	return nil
}

// finish moves a dispatch to a final state and audits it.
func (t *tracker) finish(ctx context.Context, d *store.Dispatch, status store.DispatchStatus, conclusion, message string) error {
	now := t.now()

	d.Status = status
	d.Conclusion = conclusion
	d.ErrorMessage = message
	d.CompletedAt = &now

	if err := t.store.UpdateDispatch(ctx, d); err != nil {
		return fmt.Errorf("marking dispatch as %s: %w", status, err)
	}

	if t.metrics != nil {
		t.metrics.RecordWorkflowRunFinished(d.Workflow, string(status))
	}

	details := fmt.Sprintf("dispatch=%s workflow=%s status=%s", d.ID, d.Workflow, status)
	if d.RunURL != "" {
		details += " run=" + d.RunURL
	}

	if err := t.store.CreateAuditEntry(ctx, &store.AuditEntry{
		ID:        uuid.New().String(),
		Action:    store.AuditActionWorkflowFinished,
		Tenant:    dispatchTenant(d),
		Actor:     d.RequestedBy,
		Details:   details,
		CreatedAt: now,
	}); err != nil {
		t.log.WithError(err).WithField("dispatch_id", d.ID).Warn("Failed to write audit entry")
	}

	t.log.WithFields(logrus.Fields{
		"dispatch_id": d.ID,
		"status":      status,
		"conclusion":  conclusion,
	}).Info("Dispatch finished")

	return nil
}

// findWorkflowRun picks the oldest unclaimed workflow_dispatch run created
// after the dispatch was triggered. workflow_dispatch does not return a run
// ID, so this pairing relies on dispatches of one workflow being serialized.
// The search window never reaches back past the previous paired receipt.
func (t *tracker) findWorkflowRun(
	ctx context.Context,
	d *store.Dispatch,
	claims *runClaims,
) (*github.WorkflowRun, error) {
	searchTime := d.TriggeredAt.Add(-runSearchBuffer)
	if floor := claims.floor(d.TriggeredAt); floor.After(searchTime) {
		searchTime = floor
	}

	runs, err := t.gh.ListWorkflowRuns(ctx, d.Owner, d.Repo, d.WorkflowID, github.ListWorkflowRunsOpts{
		Event:     "workflow_dispatch",
		CreatedAt: &searchTime,
		PerPage:   10,
	})
	if err != nil {
		return nil, fmt.Errorf("listing workflow runs: %w", err)
	}

	var best *github.WorkflowRun

	for i, run := range runs {
		if run.CreatedAt.Before(searchTime) {
			continue
		}

		if claims.claimed(run.ID) {
			continue
		}

		if best == nil || run.CreatedAt.Before(best.CreatedAt) {
			best = runs[i]
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no matching workflow run found")
	}

	return best, nil
}

// dispatchTenant recovers the tenant a dispatch acted on from its inputs.
func dispatchTenant(d *store.Dispatch) string {
	for _, key := range []string{InputAWSAccountNameToNuke, InputCaptainDomainToNuke, InputCaptainDomain} {
		if v := d.Inputs[key]; v != "" {
			return v
		}
	}

	return d.Workflow
}
