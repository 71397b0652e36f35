// Package retention schedules and executes delayed deletion or
// anonymization of a call's artifacts under industry-aware policy.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"callintel-go/internal/industry"
	"callintel-go/internal/logger"
	"callintel-go/internal/types"
)

// Categories lists every record class under retention, in sweep order.
var Categories = []types.RecordCategory{
	types.RecordRecordings,
	types.RecordTranscriptions,
	types.RecordExtractions,
	types.RecordIdentifiers,
	types.RecordComplianceLogs,
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	InsertDeletionJob(ctx context.Context, job *types.DeletionJob) error
	DueDeletionJobs(ctx context.Context, now time.Time) ([]types.DeletionJob, error)
	MarkDeletionJob(ctx context.Context, id string, status types.JobStatus) error
	HardDelete(ctx context.Context, cat types.RecordCategory, targetID string) error
	AnonymizeExtractions(ctx context.Context, targetID string) error
	ArchiveComplianceLogs(ctx context.Context, targetID string) error
	CallIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// Scheduler enqueues deletion jobs at call completion and executes due ones
// on a periodic sweep.
type Scheduler struct {
	store Store
	cron  *cron.Cron
	log   *logrus.Entry
	now   func() time.Time
}

func New(store Store) *Scheduler {
	return &Scheduler{
		store: store,
		cron:  cron.New(),
		log:   logger.New().WithComponent("retention-scheduler"),
		now:   time.Now,
	}
}

// MethodFor maps a category to its disposal method: extraction output is
// anonymized, compliance logs are archived, everything else is deleted.
// Compliance logs are never hard-deleted under scheduled retention.
func MethodFor(cat types.RecordCategory) types.DeletionMethod {
	switch cat {
	case types.RecordExtractions:
		return types.MethodAnonymize
	case types.RecordComplianceLogs:
		return types.MethodArchive
	default:
		return types.MethodHardDelete
	}
}

// ScheduleForCall enqueues one job per category, dated by the industry's
// retention windows.
func (s *Scheduler) ScheduleForCall(ctx context.Context, callID, industryName string) ([]types.DeletionJob, error) {
	prof := industry.Get(industryName)
	now := s.now().UTC()
	jobs := make([]types.DeletionJob, 0, len(Categories))
	for _, cat := range Categories {
		job := types.DeletionJob{
			ID:           uuid.New().String(),
			Category:     cat,
			TargetID:     callID,
			ScheduledFor: now.AddDate(0, 0, prof.RetentionFor(cat)),
			Status:       types.JobPending,
			Method:       MethodFor(cat),
			Reason:       fmt.Sprintf("%s retention policy (%s)", prof.Name, cat),
		}
		if err := s.store.InsertDeletionJob(ctx, &job); err != nil {
			return jobs, fmt.Errorf("enqueue %s job: %w", cat, err)
		}
		jobs = append(jobs, job)
	}
	s.log.WithFields(logrus.Fields{"call_id": callID, "industry": prof.Name, "jobs": len(jobs)}).Info("retention jobs scheduled")
	return jobs, nil
}

// Start arms the periodic sweep. The schedule is a cron expression, e.g.
// "@daily".
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.WithError(err).Error("retention sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", schedule).Info("retention sweep started")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Sweep executes every due job by its declared method and returns how many
// ran. A failing job is marked failed and does not stop the rest.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.DueDeletionJobs(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}
	executed := 0
	for _, job := range due {
		if err := s.execute(ctx, &job); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"job": job.ID, "category": job.Category}).Warn("deletion job failed")
			if err := s.store.MarkDeletionJob(ctx, job.ID, types.JobFailed); err != nil {
				s.log.WithError(err).Warn("could not mark job failed")
			}
			continue
		}
		if err := s.store.MarkDeletionJob(ctx, job.ID, types.JobCompleted); err != nil {
			s.log.WithError(err).Warn("could not mark job completed")
		}
		executed++
	}
	if executed > 0 {
		s.log.WithField("executed", executed).Info("retention sweep done")
	}
	return executed, nil
}

func (s *Scheduler) execute(ctx context.Context, job *types.DeletionJob) error {
	switch job.Method {
	case types.MethodAnonymize:
		return s.store.AnonymizeExtractions(ctx, job.TargetID)
	case types.MethodArchive:
		return s.store.ArchiveComplianceLogs(ctx, job.TargetID)
	default:
		return s.store.HardDelete(ctx, job.Category, job.TargetID)
	}
}

// EraseAccount runs every category for every call of the account in
// hard-delete mode immediately, bypassing schedules. Erasure requests
// override the archive policy too.
func (s *Scheduler) EraseAccount(ctx context.Context, userID string) error {
	callIDs, err := s.store.CallIDsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list calls for account: %w", err)
	}
	for _, id := range callIDs {
		for _, cat := range Categories {
			if err := s.store.HardDelete(ctx, cat, id); err != nil {
				return fmt.Errorf("erase %s for call %s: %w", cat, id, err)
			}
		}
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "calls": len(callIDs)}).Info("account data erased")
	return nil
}
