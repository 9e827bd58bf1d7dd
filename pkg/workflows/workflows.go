package workflows

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/github"
	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/glueops/tools-api/pkg/store"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Input names expected by the cleanup and reset workflows.
const (
	InputAWSAccountNameToNuke  = "AWS_ACCOUNT_NAME_TO_NUKE"
	InputCaptainDomainToNuke   = "CAPTAIN_DOMAIN_TO_NUKE"
	InputCaptainDomain         = "CAPTAIN_DOMAIN"
	InputDeleteAllExistingRepo = "DELETE_ALL_EXISTING_REPOS"
	InputCustomDomain          = "CUSTOM_DOMAIN"
	InputEnableCustomDomain    = "ENABLE_CUSTOM_DOMAIN"
)

// Request describes a single workflow dispatch.
type Request struct {
	// Workflow is the configured workflow name, e.g. "aws-account-nuke".
	Workflow    string
	Tenant      string
	Inputs      map[string]string
	RequestedBy string
}

// Receipt is what the caller gets back from a dispatch.
type Receipt struct {
	ID           string    `json:"id"`
	Workflow     string    `json:"workflow"`
	StatusCode   int       `json:"status_code"`
	WorkflowURL  string    `json:"workflow_url"`
	DispatchURL  string    `json:"dispatch_url"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// Accepted reports whether GitHub accepted the dispatch.
func (r *Receipt) Accepted() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Message is the plain-text answer returned to API callers.
func (r *Receipt) Message() string {
	return "View all jobs: " + r.WorkflowURL
}

// AWSAccountNuke builds the request that wipes an AWS sub-account.
func AWSAccountNuke(subAccountName string) Request {
	return Request{
		Workflow: config.WorkflowAWSAccountNuke,
		Tenant:   subAccountName,
		Inputs:   map[string]string{InputAWSAccountNameToNuke: subAccountName},
	}
}

// CaptainDomainNuke builds the request that wipes a captain domain's data and backups.
func CaptainDomainNuke(captainDomain string) Request {
	return Request{
		Workflow: config.WorkflowCaptainDomainNuke,
		Tenant:   captainDomain,
		Inputs:   map[string]string{InputCaptainDomainToNuke: captainDomain},
	}
}

// OrgReset holds the github-org-reset workflow parameters.
type OrgReset struct {
	CaptainDomain          string
	DeleteAllExistingRepos bool
	CustomDomain           string
	EnableCustomDomain     bool
}

// GitHubOrgReset builds the request that resets a tenant's GitHub organization.
func GitHubOrgReset(p OrgReset) Request {
	return Request{
		Workflow: config.WorkflowGitHubOrgReset,
		Tenant:   p.CaptainDomain,
		Inputs: map[string]string{
			InputCaptainDomain:         p.CaptainDomain,
			InputDeleteAllExistingRepo: strconv.FormatBool(p.DeleteAllExistingRepos),
			InputCustomDomain:          p.CustomDomain,
			InputEnableCustomDomain:    strconv.FormatBool(p.EnableCustomDomain),
		},
	}
}

// Dispatcher triggers named workflows and records a receipt for each dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Receipt, error)
	Get(ctx context.Context, id string) (*store.Dispatch, error)
	List(ctx context.Context, limit int) ([]*store.Dispatch, error)
}

// dispatcher implements Dispatcher.
type dispatcher struct {
	log       logrus.FieldLogger
	workflows map[string]config.Workflow
	gh        github.Client
	store     store.Store
	metrics   *metrics.Metrics
	now       func() time.Time

	// workflowLocks serializes dispatches of the same workflow so the tracker
	// can pair runs with receipts in trigger order. Key: "owner/repo/workflow_id".
	workflowLocks   map[string]*sync.Mutex
	workflowLocksMu sync.Mutex
}

// Ensure dispatcher implements Dispatcher.
var _ Dispatcher = (*dispatcher)(nil)

// NewDispatcher creates a new workflow dispatcher.
func NewDispatcher(
	log logrus.FieldLogger,
	cfg *config.GitHubConfig,
	gh github.Client,
	st store.Store,
	m *metrics.Metrics,
) Dispatcher {
	return &dispatcher{
		log:           log.WithField("component", "workflows"),
		workflows:     cfg.Workflows,
		gh:            gh,
		store:         st,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
		workflowLocks: make(map[string]*sync.Mutex),
	}
}

// getWorkflowLock returns or creates a mutex for a specific workflow.
func (d *dispatcher) getWorkflowLock(owner, repo, workflowID string) *sync.Mutex {
	key := fmt.Sprintf("%s/%s/%s", owner, repo, workflowID)

	d.workflowLocksMu.Lock()
	defer d.workflowLocksMu.Unlock()

	if lock, ok := d.workflowLocks[key]; ok {
		return lock
	}

	lock := &sync.Mutex{}
	d.workflowLocks[key] = lock

	return lock
}

// Dispatch posts one workflow_dispatch event. A GitHub refusal is not an
// error: it is reported through the receipt's status code.
func (d *dispatcher) Dispatch(ctx context.Context, req Request) (*Receipt, error) {
	wf, ok := d.workflows[req.Workflow]
	if !ok {
		return nil, trace.BadParameter("unknown workflow %q", req.Workflow)
	}

	for name, value := range req.Inputs {
		if strings.TrimSpace(name) == "" {
			return nil, trace.BadParameter("workflow input with empty name (value %q)", value)
		}
	}

	log := d.log.WithFields(logrus.Fields{
		"workflow": req.Workflow,
		"tenant":   req.Tenant,
	})

	lock := d.getWorkflowLock(wf.Owner, wf.Repo, wf.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	triggeredAt := d.now()

	statusCode, err := d.gh.TriggerWorkflowDispatch(ctx, wf.Owner, wf.Repo, wf.WorkflowID, wf.Ref, req.Inputs)
	if d.metrics != nil {
		d.metrics.RecordVendorCall("github", "workflow_dispatch", err)
	}

	if err != nil {
		return nil, trace.Wrap(err, "dispatching workflow %s", req.Workflow)
	}

	if d.metrics != nil {
		d.metrics.RecordWorkflowDispatch(req.Workflow, strconv.Itoa(statusCode))
	}

	receipt := &Receipt{
		ID:           uuid.New().String(),
		Workflow:     req.Workflow,
		StatusCode:   statusCode,
		WorkflowURL:  WorkflowURL(wf),
		DispatchURL:  DispatchURL(wf),
		DispatchedAt: triggeredAt,
	}

	status := store.DispatchStatusTriggered
	if !receipt.Accepted() {
		status = store.DispatchStatusRejected
	}

	record := &store.Dispatch{
		ID:          receipt.ID,
		Workflow:    req.Workflow,
		Owner:       wf.Owner,
		Repo:        wf.Repo,
		WorkflowID:  wf.WorkflowID,
		Ref:         wf.Ref,
		Inputs:      req.Inputs,
		StatusCode:  statusCode,
		Status:      status,
		RequestedBy: req.RequestedBy,
		TriggeredAt: triggeredAt,
		CreatedAt:   triggeredAt,
		UpdatedAt:   triggeredAt,
	}

	if status == store.DispatchStatusRejected {
		record.CompletedAt = &triggeredAt
		record.ErrorMessage = fmt.Sprintf("GitHub answered %d", statusCode)
	}

	// The dispatch already happened, so a bookkeeping failure must not hide it.
	if d.store != nil {
		if err := d.store.CreateDispatch(ctx, record); err != nil {
			log.WithError(err).Error("Failed to persist dispatch receipt")
		}
	}

	log.WithFields(logrus.Fields{
		"dispatch_id": receipt.ID,
		"status_code": statusCode,
	}).Info("Workflow dispatched")

	return receipt, nil
}

// Get returns a persisted receipt, or a not-found error.
func (d *dispatcher) Get(ctx context.Context, id string) (*store.Dispatch, error) {
	if d.store == nil {
		return nil, trace.NotFound("dispatch %q not found", id)
	}

	record, err := d.store.GetDispatch(ctx, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	if record == nil {
		return nil, trace.NotFound("dispatch %q not found", id)
	}

	return record, nil
}

// List returns the most recent receipts.
func (d *dispatcher) List(ctx context.Context, limit int) ([]*store.Dispatch, error) {
	if d.store == nil {
		return nil, nil
	}

	records, err := d.store.ListDispatches(ctx, limit)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return records, nil
}

// WorkflowURL is the human-facing page listing every run of the workflow.
func WorkflowURL(wf config.Workflow) string {
	return fmt.Sprintf("https://github.com/%s/%s/actions/workflows/%s", wf.Owner, wf.Repo, wf.WorkflowID)
}

// DispatchURL is the REST endpoint that receives the dispatch.
func DispatchURL(wf config.Workflow) string {
	return fmt.Sprintf("https://api.github.com/repos/%s/%s/actions/workflows/%s/dispatches",
		wf.Owner, wf.Repo, wf.WorkflowID)
}
