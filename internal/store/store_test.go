package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callintel-go/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCall(t *testing.T, s *Store, callID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertCallState(ctx, &types.CallProcessingState{
		CallID:      callID,
		UserID:      "user-1",
		CallerPhone: "555-0141",
		Industry:    "plumbing",
		Status:      types.StatusCompleted,
		ActivatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.SaveTranscript(ctx, callID, "pipe burst at 88 Elm Street"))
	require.NoError(t, s.SaveEvents(ctx, callID, []types.ExtractedEvent{
		{ID: callID + "-ev1", Type: types.EventEmergency, Title: "Burst pipe", CustomerName: "Pat Doyle", CustomerPhone: "555-0141", Location: "88 Elm Street", Urgency: types.UrgencyEmergency, Confidence: 0.9},
		{ID: callID + "-ev2", Type: types.EventFollowUp, Title: "Inspection", Urgency: types.UrgencyMedium, Confidence: 0.7},
	}))
	require.NoError(t, s.AppendComplianceLog(ctx, callID, "user-1", "compliance check: compliant=true"))
}

func TestUpsertCallStateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	st := &types.CallProcessingState{CallID: "call-1", Status: types.StatusWaitingForActivation}
	require.NoError(t, s.UpsertCallState(ctx, st))

	st.Status = types.StatusCompleted
	st.EventsExtracted = 3
	require.NoError(t, s.UpsertCallState(ctx, st))

	ids, err := s.CallIDsForUser(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"call-1"}, ids)
}

func TestSaveEventsAndCount(t *testing.T) {
	s := openTestStore(t)
	seedCall(t, s, "call-1")
	n, err := s.EventCount(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// replay of the same batch does not duplicate
	require.NoError(t, s.SaveEvents(context.Background(), "call-1", []types.ExtractedEvent{
		{ID: "call-1-ev1", Title: "Burst pipe"},
	}))
	n, err = s.EventCount(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeletionJobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)

	require.NoError(t, s.InsertDeletionJob(ctx, &types.DeletionJob{
		ID: "job-due", Category: types.RecordTranscriptions, TargetID: "call-1",
		ScheduledFor: past, Status: types.JobPending, Method: types.MethodHardDelete,
	}))
	require.NoError(t, s.InsertDeletionJob(ctx, &types.DeletionJob{
		ID: "job-later", Category: types.RecordExtractions, TargetID: "call-1",
		ScheduledFor: future, Status: types.JobPending, Method: types.MethodAnonymize,
	}))

	due, err := s.DueDeletionJobs(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "job-due", due[0].ID)
	assert.Equal(t, types.RecordTranscriptions, due[0].Category)
	assert.Equal(t, types.MethodHardDelete, due[0].Method)

	require.NoError(t, s.MarkDeletionJob(ctx, "job-due", types.JobCompleted))
	due, err = s.DueDeletionJobs(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestHardDeleteByCategory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedCall(t, s, "call-1")

	require.NoError(t, s.HardDelete(ctx, types.RecordTranscriptions, "call-1"))
	require.NoError(t, s.HardDelete(ctx, types.RecordExtractions, "call-1"))

	n, err := s.EventCount(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHardDeleteIdentifiersKeepsRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedCall(t, s, "call-1")

	require.NoError(t, s.HardDelete(ctx, types.RecordIdentifiers, "call-1"))

	// events survive with identity fields blanked
	n, err := s.EventCount(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var name, phone string
	err = s.db.QueryRowContext(ctx, `SELECT customer_name, customer_phone FROM events WHERE id = ?`, "call-1-ev1").Scan(&name, &phone)
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Empty(t, phone)
}

func TestAnonymizeExtractions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedCall(t, s, "call-1")

	require.NoError(t, s.AnonymizeExtractions(ctx, "call-1"))

	var name, location, title string
	err := s.db.QueryRowContext(ctx, `SELECT customer_name, location, title FROM events WHERE id = ?`, "call-1-ev1").Scan(&name, &location, &title)
	require.NoError(t, err)
	assert.Equal(t, "[redacted]", name)
	assert.Equal(t, "[redacted]", location)
	// business fields stay readable
	assert.Equal(t, "Burst pipe", title)
}

func TestArchiveComplianceLogs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedCall(t, s, "call-1")

	require.NoError(t, s.ArchiveComplianceLogs(ctx, "call-1"))

	var live, archived int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compliance_logs WHERE call_id = ?`, "call-1").Scan(&live))
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compliance_archive WHERE call_id = ?`, "call-1").Scan(&archived))
	assert.Equal(t, 0, live)
	assert.Equal(t, 1, archived)
}

func TestCallIDsForUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedCall(t, s, "call-1")
	seedCall(t, s, "call-2")
	require.NoError(t, s.UpsertCallState(ctx, &types.CallProcessingState{CallID: "call-3", UserID: "user-2", Status: types.StatusCompleted}))

	ids, err := s.CallIDsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"call-1", "call-2"}, ids)
}
