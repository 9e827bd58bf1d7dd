package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	log  logrus.FieldLogger
	path string
	db   *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(log logrus.FieldLogger, path string) Store {
	return &SQLiteStore{
		log:  log.WithField("component", "store"),
		path: path,
	}
}

// Start opens the database connection.
func (s *SQLiteStore) Start(ctx context.Context) error {
	s.log.WithField("path", s.path).Info("Opening SQLite database")

	db, err := sql.Open("sqlite3", s.path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Test connection.
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *SQLiteStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
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
			inputs TEXT,
			status_code INTEGER NOT NULL,
			status TEXT NOT NULL,
			run_id INTEGER,
			run_url TEXT,
			conclusion TEXT,
			requested_by TEXT,
			triggered_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
		// Migration: Add error_message column to dispatches table.
		`ALTER TABLE dispatches ADD COLUMN error_message TEXT`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE migrations.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}

			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// ============================================================================
// Dispatches
// ============================================================================

const sqliteDispatchColumns = `id, workflow, owner, repo, workflow_id, ref, inputs, status_code, status,
	run_id, run_url, conclusion, requested_by, error_message, triggered_at, completed_at, created_at, updated_at`

// CreateDispatch creates a new dispatch receipt.
func (s *SQLiteStore) CreateDispatch(ctx context.Context, dispatch *Dispatch) error {
	inputsJSON, err := json.Marshal(dispatch.Inputs)
	if err != nil {
		return fmt.Errorf("marshaling inputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatches (`+sqliteDispatchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *SQLiteStore) GetDispatch(ctx context.Context, id string) (*Dispatch, error) {
	dispatches, err := s.queryDispatches(ctx,
		`SELECT `+sqliteDispatchColumns+` FROM dispatches WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	if len(dispatches) == 0 {
		return nil, nil
	}

	return dispatches[0], nil
}

// ListDispatches retrieves the most recent dispatches, newest first.
func (s *SQLiteStore) ListDispatches(ctx context.Context, limit int) ([]*Dispatch, error) {
	query := `SELECT ` + sqliteDispatchColumns + ` FROM dispatches ORDER BY created_at DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.queryDispatches(ctx, query)
}

// ListDispatchesByStatus retrieves all dispatches with the given statuses, oldest first.
func (s *SQLiteStore) ListDispatchesByStatus(
	ctx context.Context, statuses ...DispatchStatus,
) ([]*Dispatch, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))

	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = status
	}

	query := fmt.Sprintf(`SELECT `+sqliteDispatchColumns+`
		FROM dispatches WHERE status IN (%s) ORDER BY triggered_at`,
		strings.Join(placeholders, ","))

	return s.queryDispatches(ctx, query, args...)
}

// ListPairedDispatches returns every dispatch of a workflow that has been
// paired with a run.
func (s *SQLiteStore) ListPairedDispatches(
	ctx context.Context, owner, repo, workflowID string,
) ([]*Dispatch, error) {
	return s.queryDispatches(ctx, `SELECT `+sqliteDispatchColumns+`
		FROM dispatches
		WHERE owner = ? AND repo = ? AND workflow_id = ? AND run_id IS NOT NULL
		ORDER BY triggered_at DESC`, owner, repo, workflowID)
}

func (s *SQLiteStore) queryDispatches(ctx context.Context, query string, args ...any) ([]*Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dispatches: %w", err)
	}

	defer rows.Close()

	var dispatches []*Dispatch

	for rows.Next() {
		var d Dispatch

		var inputsJSON sql.NullString

		var completedAt sql.NullTime

		var runID sql.NullInt64

		var runURL, conclusion, requestedBy, errorMessage sql.NullString

		if err := rows.Scan(&d.ID, &d.Workflow, &d.Owner, &d.Repo, &d.WorkflowID, &d.Ref,
			&inputsJSON, &d.StatusCode, &d.Status, &runID, &runURL, &conclusion, &requestedBy,
			&errorMessage, &d.TriggeredAt, &completedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning dispatch: %w", err)
		}

		if inputsJSON.Valid && inputsJSON.String != "" {
			if err := json.Unmarshal([]byte(inputsJSON.String), &d.Inputs); err != nil {
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
func (s *SQLiteStore) UpdateDispatch(ctx context.Context, dispatch *Dispatch) error {
	dispatch.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		UPDATE dispatches SET status = ?, run_id = ?, run_url = ?, conclusion = ?,
			   error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, dispatch.Status, dispatch.RunID, dispatch.RunURL, dispatch.Conclusion,
		dispatch.ErrorMessage, dispatch.CompletedAt, dispatch.UpdatedAt, dispatch.ID)

	if err != nil {
		return fmt.Errorf("updating dispatch: %w", err)
	}

	return nil
}

// DeleteOldDispatches deletes finished dispatches created before the given time.
func (s *SQLiteStore) DeleteOldDispatches(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM dispatches
		WHERE status IN ('completed', 'failed', 'cancelled', 'rejected')
		AND created_at < ?
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
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, tenant, actor, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Action, entry.Tenant, entry.Actor, entry.Details, entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting audit_entry: %w", err)
	}

	return nil
}

// ListAuditEntries retrieves audit entries with filtering and pagination.
func (s *SQLiteStore) ListAuditEntries(
	ctx context.Context, opts AuditQueryOpts,
) ([]*AuditEntry, int, error) {
	query := `SELECT id, action, tenant, actor, details, created_at FROM audit_log WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM audit_log WHERE 1=1`

	var args []any

	if opts.Tenant != nil {
		query += " AND tenant = ?"
		countQuery += " AND tenant = ?"

		args = append(args, *opts.Tenant)
	}

	if opts.Action != nil {
		query += " AND action = ?"
		countQuery += " AND action = ?"

		args = append(args, *opts.Action)
	}

	if opts.Actor != nil {
		query += " AND actor = ?"
		countQuery += " AND actor = ?"

		args = append(args, *opts.Actor)
	}

	if opts.Since != nil {
		query += " AND created_at >= ?"
		countQuery += " AND created_at >= ?"

		args = append(args, *opts.Since)
	}

	if opts.Until != nil {
		query += " AND created_at <= ?"
		countQuery += " AND created_at <= ?"

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
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}

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
