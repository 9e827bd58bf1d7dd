package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v60/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// rateReserve is the number of calls kept back for dispatches once
// background polling has drained the quota.
const rateReserve = 10

// Client is the slice of the GitHub Actions API used to dispatch and follow
// cleanup workflows.
type Client interface {
	Start(ctx context.Context) error
	Stop() error

	// TriggerWorkflowDispatch fires a workflow_dispatch event and returns the
	// HTTP status GitHub answered with.
	TriggerWorkflowDispatch(
		ctx context.Context,
		owner, repo, workflowID, ref string,
		inputs map[string]string,
	) (int, error)
	GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (*WorkflowRun, error)
	ListWorkflowRuns(ctx context.Context, owner, repo, workflowID string, opts ListWorkflowRunsOpts) ([]*WorkflowRun, error)

	// RateLimit returns the last core rate limit GitHub reported.
	RateLimit() Rate
}

// Rate is a snapshot of the core API quota.
type Rate struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Exhausted reports whether only the dispatch reserve is left before the
// quota resets. An unknown quota is never exhausted.
func (r Rate) Exhausted(now time.Time) bool {
	if r.Limit == 0 {
		return false
	}

	return r.Remaining <= rateReserve && now.Before(r.Reset)
}

// ListWorkflowRunsOpts filters a workflow run listing.
type ListWorkflowRunsOpts struct {
	Branch    string
	Event     string
	Status    string
	CreatedAt *time.Time
	PerPage   int
}

// WorkflowRun is a GitHub Actions run.
type WorkflowRun struct {
	ID         int64
	Name       string
	Event      string
	Status     string // queued, in_progress, completed
	Conclusion string // success, failure, cancelled, ...
	HTMLURL    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type client struct {
	log   logrus.FieldLogger
	token string
	gh    *github.Client

	mu   sync.RWMutex
	rate Rate
}

var _ Client = (*client)(nil)

// NewClient creates a GitHub client authenticated with token. An empty
// baseURL targets api.github.com.
func NewClient(log logrus.FieldLogger, token, baseURL string) (Client, error) {
	var httpClient *http.Client

	if token != "" {
		httpClient = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	gh := github.NewClient(httpClient)
	gh.UserAgent = "tools-api"

	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub base URL: %w", err)
		}

		gh.BaseURL = u
	}

	return &client{
		log:   log.WithField("component", "github"),
		token: token,
		gh:    gh,
	}, nil
}

// Start checks the token against the rate limit endpoint. Without a token
// every dispatch is refused by GitHub, which callers see as a rejected receipt.
func (c *client) Start(ctx context.Context) error {
	if c.token == "" {
		c.log.Warn("No GitHub token configured, workflow dispatches will be rejected")

		return nil
	}

	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("verifying GitHub token: %w", err)
	}

	core := limits.GetCore()
	if core == nil {
		return nil
	}

	c.setRate(Rate{Limit: core.Limit, Remaining: core.Remaining, Reset: core.Reset.Time})

	c.log.WithFields(logrus.Fields{
		"rate_remaining": core.Remaining,
		"rate_limit":     core.Limit,
		"rate_reset":     core.Reset.Time,
	}).Info("GitHub token verified")

	return nil
}

// Stop is a no-op; the client holds no background work.
func (c *client) Stop() error {
	return nil
}

// RateLimit returns the last core rate limit GitHub reported.
func (c *client) RateLimit() Rate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rate
}

func (c *client) setRate(r Rate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rate = r
}

// observe records the quota carried by a response.
func (c *client) observe(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}

	c.setRate(Rate{Limit: resp.Rate.Limit, Remaining: resp.Rate.Remaining, Reset: resp.Rate.Reset.Time})
}

// TriggerWorkflowDispatch returns GitHub's status code. A non-2xx answer is
// not an error; only transport failures are.
func (c *client) TriggerWorkflowDispatch(
	ctx context.Context,
	owner, repo, workflowID, ref string,
	inputs map[string]string,
) (int, error) {
	log := c.log.WithFields(logrus.Fields{
		"repository": owner + "/" + repo,
		"workflow":   workflowID,
		"ref":        ref,
	})

	event := github.CreateWorkflowDispatchEventRequest{
		Ref:    ref,
		Inputs: make(map[string]interface{}, len(inputs)),
	}

	for k, v := range inputs {
		event.Inputs[k] = v
	}

	resp, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, owner, repo, workflowID, event)
	c.observe(resp)

	switch {
	case err == nil:
		log.WithField("status_code", resp.StatusCode).Info("Workflow dispatched")

		return resp.StatusCode, nil
	case resp != nil && resp.Response != nil:
		log.WithError(err).WithField("status_code", resp.StatusCode).Warn("GitHub refused workflow dispatch")

		return resp.StatusCode, nil
	default:
		return 0, fmt.Errorf("dispatching %s/%s %s: %w", owner, repo, workflowID, err)
	}
}

// GetWorkflowRun fetches a single run.
func (c *client) GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (*WorkflowRun, error) {
	run, resp, err := c.gh.Actions.GetWorkflowRunByID(ctx, owner, repo, runID)
	c.observe(resp)

	if err != nil {
		return nil, fmt.Errorf("getting workflow run %d: %w", runID, err)
	}

	return toWorkflowRun(run), nil
}

// ListWorkflowRuns returns the most recent runs of a workflow, newest first.
func (c *client) ListWorkflowRuns(
	ctx context.Context,
	owner, repo, workflowID string,
	opts ListWorkflowRunsOpts,
) ([]*WorkflowRun, error) {
	runs, resp, err := c.gh.Actions.ListWorkflowRunsByFileName(ctx, owner, repo, workflowID, listOptions(opts))
	c.observe(resp)

	if err != nil {
		return nil, fmt.Errorf("listing runs of %s: %w", workflowID, err)
	}

	result := make([]*WorkflowRun, 0, len(runs.WorkflowRuns))
	for _, run := range runs.WorkflowRuns {
		result = append(result, toWorkflowRun(run))
	}

	c.log.WithFields(logrus.Fields{
		"repository": owner + "/" + repo,
		"workflow":   workflowID,
		"count":      len(result),
	}).Debug("Listed workflow runs")

	return result, nil
}

func listOptions(opts ListWorkflowRunsOpts) *github.ListWorkflowRunsOptions {
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 10
	}

	out := &github.ListWorkflowRunsOptions{
		Branch:      opts.Branch,
		Event:       opts.Event,
		Status:      opts.Status,
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	if opts.CreatedAt != nil {
		out.Created = ">=" + opts.CreatedAt.UTC().Format(time.RFC3339)
	}

	return out
}

func toWorkflowRun(run *github.WorkflowRun) *WorkflowRun {
	return &WorkflowRun{
		ID:         run.GetID(),
		Name:       run.GetName(),
		Event:      run.GetEvent(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		HTMLURL:    run.GetHTMLURL(),
		CreatedAt:  run.GetCreatedAt().Time,
		UpdatedAt:  run.GetUpdatedAt().Time,
	}
}
