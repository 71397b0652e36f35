package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callintel-go/internal/industry"
	"callintel-go/internal/types"
)

// memStore is an in-memory Store double.
type memStore struct {
	jobs       map[string]*types.DeletionJob
	hardDels   []string // "category/target"
	anonymized []string
	archived   []string
	userCalls  map[string][]string
	failHard   bool
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*types.DeletionJob{}, userCalls: map[string][]string{}}
}

func (m *memStore) InsertDeletionJob(_ context.Context, job *types.DeletionJob) error {
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) DueDeletionJobs(_ context.Context, now time.Time) ([]types.DeletionJob, error) {
	var out []types.DeletionJob
	for _, j := range m.jobs {
		if j.Status == types.JobPending && !j.ScheduledFor.After(now) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memStore) MarkDeletionJob(_ context.Context, id string, status types.JobStatus) error {
	if j, ok := m.jobs[id]; ok {
		j.Status = status
	}
	return nil
}

func (m *memStore) HardDelete(_ context.Context, cat types.RecordCategory, targetID string) error {
	if m.failHard {
		return errors.New("boom")
	}
	m.hardDels = append(m.hardDels, string(cat)+"/"+targetID)
	return nil
}

func (m *memStore) AnonymizeExtractions(_ context.Context, targetID string) error {
	m.anonymized = append(m.anonymized, targetID)
	return nil
}

func (m *memStore) ArchiveComplianceLogs(_ context.Context, targetID string) error {
	m.archived = append(m.archived, targetID)
	return nil
}

func (m *memStore) CallIDsForUser(_ context.Context, userID string) ([]string, error) {
	return m.userCalls[userID], nil
}

func TestScheduleForCallCreatesFiveJobs(t *testing.T) {
	ms := newMemStore()
	s := New(ms)
	jobs, err := s.ScheduleForCall(context.Background(), "call-1", "plumbing")
	require.NoError(t, err)
	assert.Len(t, jobs, 5)
	cats := map[types.RecordCategory]bool{}
	for _, j := range jobs {
		cats[j.Category] = true
		assert.Equal(t, types.JobPending, j.Status)
		assert.Equal(t, "call-1", j.TargetID)
		assert.True(t, j.ScheduledFor.After(time.Now()))
	}
	assert.Len(t, cats, 5)
}

func TestMedicalWindowsShorterThanGeneral(t *testing.T) {
	med := industry.Get("medical")
	gen := industry.Get("general")
	for _, cat := range []types.RecordCategory{types.RecordRecordings, types.RecordTranscriptions} {
		assert.Less(t, med.RetentionFor(cat), gen.RetentionFor(cat), "category %s", cat)
	}
}

func TestComplianceLogsNeverHardDeleted(t *testing.T) {
	ms := newMemStore()
	s := New(ms)
	for _, ind := range []string{"general", "plumbing", "medical", "legal", "financial", "real_estate"} {
		jobs, err := s.ScheduleForCall(context.Background(), "call-"+ind, ind)
		require.NoError(t, err)
		for _, j := range jobs {
			if j.Category == types.RecordComplianceLogs {
				assert.NotEqual(t, types.MethodHardDelete, j.Method, "industry %s", ind)
				assert.Equal(t, types.MethodArchive, j.Method)
			}
		}
	}
}

func TestSweepExecutesByMethod(t *testing.T) {
	ms := newMemStore()
	s := New(ms)
	_, err := s.ScheduleForCall(context.Background(), "call-9", "general")
	require.NoError(t, err)
	// jump the sweep clock past every retention window
	s.now = func() time.Time { return time.Now().AddDate(30, 0, 0) }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Contains(t, ms.anonymized, "call-9")
	assert.Contains(t, ms.archived, "call-9")
	assert.Contains(t, ms.hardDels, "recordings/call-9")
	assert.Contains(t, ms.hardDels, "transcriptions/call-9")
	assert.NotContains(t, ms.hardDels, "compliance_logs/call-9")
	for _, j := range ms.jobs {
		assert.Equal(t, types.JobCompleted, j.Status)
	}
}

func TestSweepMarksFailures(t *testing.T) {
	ms := newMemStore()
	ms.failHard = true
	s := New(ms)
	_, err := s.ScheduleForCall(context.Background(), "call-2", "general")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().AddDate(30, 0, 0) }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n) // only anonymize + archive succeed
	failed := 0
	for _, j := range ms.jobs {
		if j.Status == types.JobFailed {
			failed++
		}
	}
	assert.Equal(t, 3, failed)
}

func TestSweepIsIdempotent(t *testing.T) {
	ms := newMemStore()
	s := New(ms)
	_, err := s.ScheduleForCall(context.Background(), "call-3", "plumbing")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().AddDate(30, 0, 0) }

	first, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, first)
	second, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestEraseAccountBypassesSchedules(t *testing.T) {
	ms := newMemStore()
	ms.userCalls["user-7"] = []string{"c1", "c2"}
	s := New(ms)
	require.NoError(t, s.EraseAccount(context.Background(), "user-7"))
	// every category hard-deleted for both calls, compliance logs included
	assert.Len(t, ms.hardDels, 10)
	assert.Contains(t, ms.hardDels, "compliance_logs/c1")
	assert.Empty(t, ms.anonymized)
}
