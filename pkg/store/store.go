package store

import (
	"context"
	"time"
)

// Store defines the interface for database operations.
type Store interface {
	// Lifecycle.
	Start(ctx context.Context) error
	Stop() error

	// Dispatches.
	CreateDispatch(ctx context.Context, dispatch *Dispatch) error
	GetDispatch(ctx context.Context, id string) (*Dispatch, error)
	ListDispatches(ctx context.Context, limit int) ([]*Dispatch, error)
	ListDispatchesByStatus(ctx context.Context, statuses ...DispatchStatus) ([]*Dispatch, error)
	// ListPairedDispatches returns the dispatches of one workflow that hold a
	// run ID, whatever their status, most recently triggered first.
	ListPairedDispatches(ctx context.Context, owner, repo, workflowID string) ([]*Dispatch, error)
	UpdateDispatch(ctx context.Context, dispatch *Dispatch) error
	DeleteOldDispatches(ctx context.Context, olderThan time.Time) (int64, error)

	// Audit.
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, opts AuditQueryOpts) ([]*AuditEntry, int, error)

	// Migrations.
	Migrate(ctx context.Context) error
}

// DispatchStatus represents the state of a workflow dispatch.
type DispatchStatus string

const (
	DispatchStatusTriggered DispatchStatus = "triggered"
	DispatchStatusRunning   DispatchStatus = "running"
	DispatchStatusCompleted DispatchStatus = "completed"
	DispatchStatusFailed    DispatchStatus = "failed"
	DispatchStatusCancelled DispatchStatus = "cancelled"
	DispatchStatusRejected  DispatchStatus = "rejected"
)

// Final reports whether no further transitions are expected.
func (s DispatchStatus) Final() bool {
	switch s {
	case DispatchStatusCompleted, DispatchStatusFailed, DispatchStatusCancelled, DispatchStatusRejected:
		return true
	default:
		return false
	}
}

// Dispatch is the persisted receipt of one workflow_dispatch call.
type Dispatch struct {
	ID           string            `json:"id"`
	Workflow     string            `json:"workflow"`
	Owner        string            `json:"owner"`
	Repo         string            `json:"repo"`
	WorkflowID   string            `json:"workflow_id"`
	Ref          string            `json:"ref"`
	Inputs       map[string]string `json:"inputs"`
	StatusCode   int               `json:"status_code"`
	Status       DispatchStatus    `json:"status"`
	RunID        *int64            `json:"run_id"`
	RunURL       string            `json:"run_url"`
	Conclusion   string            `json:"conclusion"`
	RequestedBy  string            `json:"requested_by"`
	ErrorMessage string            `json:"error_message"`
	TriggeredAt  time.Time         `json:"triggered_at"`
	CompletedAt  *time.Time        `json:"completed_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	AuditActionExitNodesProvisioned AuditAction = "exit_nodes_provisioned"
	AuditActionExitNodesDeleted     AuditAction = "exit_nodes_deleted"
	AuditActionBucketsReset         AuditAction = "buckets_reset"
	AuditActionCredentialsMinted    AuditAction = "credentials_minted"
	AuditActionWorkflowDispatched   AuditAction = "workflow_dispatched"
	AuditActionWorkflowFinished     AuditAction = "workflow_finished"
)

// AuditEntry represents an audit log entry.
type AuditEntry struct {
	ID        string      `json:"id"`
	Action    AuditAction `json:"action"`
	Tenant    string      `json:"tenant"`
	Actor     string      `json:"actor"`
	Details   string      `json:"details"`
	CreatedAt time.Time   `json:"created_at"`
}

// AuditQueryOpts contains options for querying audit entries.
type AuditQueryOpts struct {
	Tenant *string
	Action *AuditAction
	Actor  *string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}
