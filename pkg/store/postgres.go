package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	log logrus.FieldLogger
	dsn string
	db  *sql.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(log logrus.FieldLogger, dsn string) Store {
	return &PostgresStore{
		log: log.WithField("component", "store"),
		dsn: dsn,
	}
}

// Start opens the database connection.
func (s *PostgresStore) Start(ctx context.Context) error {
	s.log.Info("Opening PostgreSQL database")

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection.
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *PostgresStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Migrate runs database migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.log.Info("Running database migrations")

	migrations := []string{
		// Dispatches table.
		`CREATE TABLE IF NOT EXISTS dispatches (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			ref TEXT NOT NULL DEFAULT 'refs/heads/main',
			inputs JSONB,
			status_code INTEGER NOT NULL,
			status TEXT NOT NULL,
			run_id BIGINT,
			run_url TEXT,
			conclusion TEXT,
			requested_by TEXT,
			triggered_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_status ON dispatches(status)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_created ON dispatches(created_at)`,
		// Audit log table.
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			tenant TEXT NOT NULL,
			actor TEXT,
			details TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
		// Migration: Add error_message column to dispatches table.
		`ALTER TABLE dispatches ADD COLUMN IF NOT EXISTS error_message TEXT`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// ============================================================================
// Dispatches
// ============================================================================

const postgresDispatchColumns = `id, workflow, owner, repo, workflow_id, ref, inputs, status_code, status,
	run_id, run_url, conclusion, requested_by, error_message, triggered_at, completed_at, created_at, updated_at`

// CreateDispatch creates a new dispatch receipt.
func (s *PostgresStore) CreateDispatch(ctx context.Context, dispatch *Dispatch) error {
	inputsJSON, err := json.Marshal(dispatch.Inputs)
	if err != nil {
		return fmt.Errorf("marshaling inputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatches (`+postgresDispatchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, dispatch.ID, dispatch.Workflow, dispatch.Owner, dispatch.Repo, dispatch.WorkflowID, dispatch.Ref,
		string(inputsJSON), dispatch.StatusCode, dispatch.Status, dispatch.RunID, dispatch.RunURL,
		dispatch.Conclusion, dispatch.RequestedBy, dispatch.ErrorMessage, dispatch.TriggeredAt,
		dispatch.CompletedAt, dispatch.CreatedAt, dispatch.UpdatedAt)

	if err != nil {
		return fmt.Errorf("inserting dispatch: %w", err)
	}

	return nil
}

// GetDispatch retrieves a dispatch by ID.
func (s *PostgresStore) GetDispatch(ctx context.Context, id string) (*Dispatch, error) {
	dispatches, err := s.queryDispatches(ctx,
		`SELECT `+postgresDispatchColumns+` FROM dispatches WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	if len(dispatches) == 0 {
		return nil, nil
	}

	return dispatches[0], nil
}

// ListDispatches retrieves the most recent dispatches, newest first.
func (s *PostgresStore) ListDispatches(ctx context.Context, limit int) ([]*Dispatch, error) {
	query := `SELECT ` + postgresDispatchColumns + ` FROM dispatches ORDER BY created_at DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.queryDispatches(ctx, query)
}

// ListDispatchesByStatus retrieves all dispatches with the given statuses, oldest first.
func (s *PostgresStore) ListDispatchesByStatus(
	ctx context.Context, statuses ...DispatchStatus,
) ([]*Dispatch, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))

	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = status
	}

	query := fmt.Sprintf(`SELECT `+postgresDispatchColumns+`
		FROM dispatches WHERE status IN (%s) ORDER BY triggered_at`,
		strings.Join(placeholders, ","))

	return s.queryDispatches(ctx, query, args...)
}

// ListPairedDispatches returns every dispatch of a workflow that has been
// paired with a run.
func (s *PostgresStore) ListPairedDispatches(
	ctx context.Context, owner, repo, workflowID string,
) ([]*Dispatch, error) {
	return s.queryDispatches(ctx, `SELECT `+postgresDispatchColumns+`
		FROM dispatches
		WHERE owner = $1 AND repo = $2 AND workflow_id = $3 AND run_id IS NOT NULL
		ORDER BY triggered_at DESC`, owner, repo, workflowID)
}

func (s *PostgresStore) queryDispatches(ctx context.Context, query string, args ...any) ([]*Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dispatches: %w", err)
	}

	defer rows.Close()

	var dispatches []*Dispatch

	for rows.Next() {
		var d Dispatch

		var inputsJSON []byte

		var completedAt sql.NullTime

		var runID sql.NullInt64

		var runURL, conclusion, requestedBy, errorMessage sql.NullString

		if err := rows.Scan(&d.ID, &d.Workflow, &d.Owner, &d.Repo, &d.WorkflowID, &d.Ref,
			&inputsJSON, &d.StatusCode, &d.Status, &runID, &runURL, &conclusion, &requestedBy,
			&errorMessage, &d.TriggeredAt, &completedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning dispatch: %w", err)
		}

		if len(inputsJSON) > 0 {
			if err := json.Unmarshal(inputsJSON, &d.Inputs); err != nil {
				return nil, fmt.Errorf("unmarshaling inputs: %w", err)
			}
		}

		if completedAt.Valid {
			d.CompletedAt = &completedAt.Time
		}

		if runID.Valid {
			d.RunID = &runID.Int64
		}

		d.RunURL = runURL.String
		d.Conclusion = conclusion.String
		d.RequestedBy = requestedBy.String
		d.ErrorMessage = errorMessage.String

		dispatches = append(dispatches, &d)
	}

	return dispatches, rows.Err()
}

// UpdateDispatch updates the tracking fields of an existing dispatch.
func (s *PostgresStore) UpdateDispatch(ctx context.Context, dispatch *Dispatch) error {
	dispatch.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		UPDATE dispatches SET status = $1, run_id = $2, run_url = $3, conclusion = $4,
			   error_message = $5, completed_at = $6, updated_at = $7
		WHERE id = $8
	`, dispatch.Status, dispatch.RunID, dispatch.RunURL, dispatch.Conclusion,
		dispatch.ErrorMessage, dispatch.CompletedAt, dispatch.UpdatedAt, dispatch.ID)

	if err != nil {
		return fmt.Errorf("updating dispatch: %w", err)
	}

	return nil
}

// DeleteOldDispatches deletes finished dispatches created before the given time.
func (s *PostgresStore) DeleteOldDispatches(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM dispatches
		WHERE status IN ('completed', 'failed', 'cancelled', 'rejected')
		AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deleting old dispatches: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return count, nil
}

// ============================================================================
// Audit
// ============================================================================

// CreateAuditEntry creates a new audit log entry.
func (s *PostgresStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, tenant, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Action, entry.Tenant, entry.Actor, entry.Details, entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting audit_entry: %w", err)
	}

	return nil
}

// ListAuditEntries retrieves audit entries with filtering and pagination.
func (s *PostgresStore) ListAuditEntries(
	ctx context.Context, opts AuditQueryOpts,
) ([]*AuditEntry, int, error) {
	query := `SELECT id, action, tenant, actor, details, created_at FROM audit_log WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM audit_log WHERE 1=1`

	var args []any
	paramNum := 1

	if opts.Tenant != nil {
		query += fmt.Sprintf(" AND tenant = $%d", paramNum)
		countQuery += fmt.Sprintf(" AND tenant = $%d", paramNum)

		args = append(args, *opts.Tenant)
		paramNum++
	}

	if opts.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", paramNum)
		countQuery += fmt.Sprintf(" AND action = $%d", paramNum)

		args = append(args, *opts.Action)
		paramNum++
	}

	if opts.Actor != nil {
		query += fmt.Sprintf(" AND actor = $%d", paramNum)
		countQuery += fmt.Sprintf(" AND actor = $%d", paramNum)

		args = append(args, *opts.Actor)
		paramNum++
	}

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", paramNum)
		countQuery += fmt.Sprintf(" AND created_at >= $%d", paramNum)

		args = append(args, *opts.Since)
		paramNum++
	}

	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", paramNum)
		countQuery += fmt.Sprintf(" AND created_at <= $%d", paramNum)

		args = append(args, *opts.Until)
	}

	// Get total count.
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	// Apply ordering and pagination.
	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}

	defer rows.Close()

	var entries []*AuditEntry

	for rows.Next() {
		var entry AuditEntry

		var actor, details sql.NullString

		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Tenant,
			&actor, &details, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit_entry: %w", err)
		}

		entry.Actor = actor.String
		entry.Details = details.String
		entries = append(entries, &entry)
	}

	return entries, total, rows.Err()
}
