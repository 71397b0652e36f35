// Package store persists call, event and retention records in SQLite.
// Writes are best-effort from the pipeline's point of view: callers log
// failures and keep going on in-memory state.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"callintel-go/internal/types"
)

// Store wraps SQLite access for calls, events and deletion jobs.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			call_id TEXT PRIMARY KEY,
			user_id TEXT,
			caller_phone TEXT,
			industry TEXT,
			audio_url TEXT,
			status TEXT,
			error_count INTEGER DEFAULT 0,
			last_error TEXT,
			events_extracted INTEGER DEFAULT 0,
			activated_at TIMESTAMP,
			completed_at TIMESTAMP,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			call_id TEXT PRIMARY KEY,
			text TEXT,
			created_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			call_id TEXT,
			type TEXT,
			title TEXT,
			description TEXT,
			customer_name TEXT,
			customer_phone TEXT,
			customer_email TEXT,
			location TEXT,
			proposed_datetime TEXT,
			urgency TEXT,
			price_estimate TEXT,
			confidence REAL,
			service_type TEXT,
			notes TEXT,
			created_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_call ON events(call_id);`,
		`CREATE TABLE IF NOT EXISTS deletion_jobs (
			id TEXT PRIMARY KEY,
			category TEXT,
			target_id TEXT,
			scheduled_for TIMESTAMP,
			status TEXT,
			method TEXT,
			reason TEXT,
			created_at TIMESTAMP,
			executed_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_due ON deletion_jobs(status, scheduled_for);`,
		`CREATE TABLE IF NOT EXISTS compliance_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id TEXT,
			user_id TEXT,
			entry TEXT,
			created_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS compliance_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id TEXT,
			user_id TEXT,
			entry TEXT,
			created_at TIMESTAMP,
			archived_at TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertCallState mirrors the coordinator's in-memory state to disk.
func (s *Store) UpsertCallState(ctx context.Context, st *types.CallProcessingState) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO calls(call_id, user_id, caller_phone, industry, status, error_count, last_error, events_extracted, activated_at, completed_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(call_id) DO UPDATE SET
			status=excluded.status,
			error_count=excluded.error_count,
			last_error=excluded.last_error,
			events_extracted=excluded.events_extracted,
			activated_at=excluded.activated_at,
			completed_at=excluded.completed_at,
			updated_at=excluded.updated_at`,
		st.CallID, st.UserID, st.CallerPhone, st.Industry, string(st.Status),
		st.ErrorCount, st.LastError, st.EventsExtracted,
		nullTime(st.ActivatedAt), nullTime(st.CompletedAt), now)
	return err
}

// SaveTranscript keeps the transcript text for retention-managed storage.
func (s *Store) SaveTranscript(ctx context.Context, callID, text string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO transcripts(call_id, text, created_at) VALUES(?,?,?)
		ON CONFLICT(call_id) DO UPDATE SET text=excluded.text`, callID, text, time.Now().UTC())
	return err
}

// SaveEvents persists the extraction output for one call.
func (s *Store) SaveEvents(ctx context.Context, callID string, events []types.ExtractedEvent) error {
	now := time.Now().UTC()
	for _, ev := range events {
		_, err := s.db.ExecContext(ctx, `INSERT INTO events(id, call_id, type, title, description, customer_name, customer_phone, customer_email, location, proposed_datetime, urgency, price_estimate, confidence, service_type, notes, created_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO NOTHING`,
			ev.ID, callID, string(ev.Type), ev.Title, ev.Description,
			ev.CustomerName, ev.CustomerPhone, ev.CustomerEmail, ev.Location,
			ev.ProposedDateTime, string(ev.Urgency), ev.PriceEstimate,
			ev.Confidence, ev.ServiceType, ev.Notes, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// AppendComplianceLog records one auditable action for a call.
func (s *Store) AppendComplianceLog(ctx context.Context, callID, userID, entry string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO compliance_logs(call_id, user_id, entry, created_at) VALUES(?,?,?,?)`,
		callID, userID, entry, time.Now().UTC())
	return err
}

// InsertDeletionJob enqueues one retention job.
func (s *Store) InsertDeletionJob(ctx context.Context, job *types.DeletionJob) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO deletion_jobs(id, category, target_id, scheduled_for, status, method, reason, created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		job.ID, string(job.Category), job.TargetID, job.ScheduledFor.UTC(),
		string(job.Status), string(job.Method), job.Reason, time.Now().UTC())
	return err
}

// DueDeletionJobs lists pending jobs scheduled at or before now.
func (s *Store) DueDeletionJobs(ctx context.Context, now time.Time) ([]types.DeletionJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, category, target_id, scheduled_for, status, method, reason
		FROM deletion_jobs WHERE status = ? AND scheduled_for <= ? ORDER BY scheduled_for`,
		string(types.JobPending), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.DeletionJob
	for rows.Next() {
		var j types.DeletionJob
		var cat, status, method string
		if err := rows.Scan(&j.ID, &cat, &j.TargetID, &j.ScheduledFor, &status, &method, &j.Reason); err != nil {
			return nil, err
		}
		j.Category = types.RecordCategory(cat)
		j.Status = types.JobStatus(status)
		j.Method = types.DeletionMethod(method)
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkDeletionJob finalizes a job after the sweep ran it.
func (s *Store) MarkDeletionJob(ctx context.Context, id string, status types.JobStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE deletion_jobs SET status = ?, executed_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	return err
}

// HardDelete removes one category of data for a call outright.
func (s *Store) HardDelete(ctx context.Context, cat types.RecordCategory, targetID string) error {
	switch cat {
	case types.RecordRecordings:
		_, err := s.db.ExecContext(ctx, `UPDATE calls SET audio_url = NULL WHERE call_id = ?`, targetID)
		return err
	case types.RecordTranscriptions:
		_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE call_id = ?`, targetID)
		return err
	case types.RecordExtractions:
		_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE call_id = ?`, targetID)
		return err
	case types.RecordIdentifiers:
		if _, err := s.db.ExecContext(ctx, `UPDATE calls SET caller_phone = '' WHERE call_id = ?`, targetID); err != nil {
			return err
		}
		_, err := s.db.ExecContext(ctx, `UPDATE events SET customer_name = '', customer_phone = '', customer_email = '' WHERE call_id = ?`, targetID)
		return err
	case types.RecordComplianceLogs:
		_, err := s.db.ExecContext(ctx, `DELETE FROM compliance_logs WHERE call_id = ?`, targetID)
		return err
	}
	return nil
}

// AnonymizeExtractions redacts personal fields on a call's events while
// keeping the non-identifying business fields.
func (s *Store) AnonymizeExtractions(ctx context.Context, targetID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET
		customer_name = '[redacted]',
		customer_phone = '[redacted]',
		customer_email = '[redacted]',
		location = '[redacted]'
		WHERE call_id = ?`, targetID)
	return err
}

// ArchiveComplianceLogs relocates a call's compliance entries; they are
// never deleted under retention policy.
func (s *Store) ArchiveComplianceLogs(ctx context.Context, targetID string) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO compliance_archive(call_id, user_id, entry, created_at, archived_at)
		SELECT call_id, user_id, entry, created_at, ? FROM compliance_logs WHERE call_id = ?`, now, targetID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM compliance_logs WHERE call_id = ?`, targetID)
	return err
}

// CallIDsForUser lists every call recorded for an account, for erasure
// requests.
func (s *Store) CallIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT call_id FROM calls WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EventCount reports stored events for one call.
func (s *Store) EventCount(ctx context.Context, callID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE call_id = ?`, callID).Scan(&n)
	return n, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
