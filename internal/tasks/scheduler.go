package tasks

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/flightclaims/claims-engine/internal/claims"
	"github.com/flightclaims/claims-engine/internal/documents"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
	"github.com/flightclaims/claims-engine/internal/webdav"
)

const (
	// TaskDraftReminder is queued once per reminder stage for a draft
	// that has crossed that stage's age threshold.
	TaskDraftReminder = "claim.draft_reminder"
	// TaskDraftDiscarded fires once a draft is moved to the discarded
	// terminal state by the sweep.
	TaskDraftDiscarded = "claim.draft_discarded"
)

// draftReminderThresholds are the ages at which a reminder fires,
// indexed by reminder_stage.
var draftReminderThresholds = []time.Duration{
	30 * time.Minute,
	5 * 24 * time.Hour,
	8 * 24 * time.Hour,
	11 * 24 * time.Hour,
}

const draftDiscardAge = 14 * 24 * time.Hour
const fileReaperAge = 30 * 24 * time.Hour

// Scheduler registers the claims engine's time-triggered sweeps on a
// cron.Cron instance: draft reminder emails, the 14-day draft-discard
// sweep, and the 30-day soft-deleted file reaper. The reminder and
// discard sweeps enqueue their notices through the same task_outbox the
// claim/document services use, so those get the same at-least-once,
// idempotent delivery as a transition-triggered side effect. The file
// reaper deletes from WebDAV and the files table directly, without the
// outbox.
type Scheduler struct {
	claims    *claims.Store
	documents *documents.Store
	webdav    *webdav.Client
	outbox    *OutboxStore
	logger    *logging.Logger
	now       func() time.Time
}

func NewScheduler(claimStore *claims.Store, documentStore *documents.Store, dav *webdav.Client, outbox *OutboxStore, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		claims:    claimStore,
		documents: documentStore,
		webdav:    dav,
		outbox:    outbox,
		logger:    logger,
		now:       time.Now,
	}
}

// Register mounts every sweep on c at its standard cron expression and
// returns c unstarted, so the caller controls Start/Stop lifecycle
// alongside the rest of the process.
func (s *Scheduler) Register(c *cron.Cron) error {
	if _, err := c.AddFunc("*/15 * * * *", s.runDraftReminders); err != nil {
		return err
	}
	if _, err := c.AddFunc("0 3 * * *", s.runDraftDiscardSweep); err != nil {
		return err
	}
	if _, err := c.AddFunc("0 4 * * *", s.runFileReaper); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) runDraftReminders() {
	ctx := context.Background()
	due, err := s.claims.ListDraftsDueForReminder(ctx, draftReminderThresholds, s.now())
	if err != nil {
		s.logError(ctx, "list drafts due for reminder", err)
		return
	}
	for _, c := range due {
		idempotencyKey := c.ID.String() + ":reminder:" + strconv.Itoa(c.ReminderStage)
		payload := map[string]interface{}{"claim_id": c.ID.String(), "stage": c.ReminderStage}
		if err := s.outbox.Insert(ctx, "notifications", TaskDraftReminder, payload, idempotencyKey, s.now()); err != nil {
			s.logError(ctx, "enqueue draft reminder", err)
			continue
		}
		if err := s.claims.MarkReminderSent(ctx, c.ID, c.ReminderStage); err != nil {
			s.logError(ctx, "mark reminder sent", err)
		}
	}
}

func (s *Scheduler) runDraftDiscardSweep() {
	ctx := context.Background()
	cutoff := s.now().Add(-draftDiscardAge)
	stale, err := s.claims.ListDraftsOlderThan(ctx, cutoff)
	if err != nil {
		s.logError(ctx, "list stale drafts", err)
		return
	}
	for _, c := range stale {
		_, err := s.claims.ApplyTransition(ctx, c.ID, c.Version, claims.StatusDiscarded, nil)
		if err != nil {
			s.logError(ctx, "discard stale draft", err)
			continue
		}
		files, err := s.documents.ListByClaim(ctx, c.ID)
		if err != nil {
			s.logError(ctx, "list files for discarded draft", err)
			continue
		}
		for _, f := range files {
			fileID, err := uuid.Parse(f.ID)
			if err != nil {
				s.logError(ctx, "parse discarded draft file id", err)
				continue
			}
			if err := s.documents.SoftDelete(ctx, fileID); err != nil {
				s.logError(ctx, "soft delete discarded draft file", err)
			}
		}
		payload := map[string]interface{}{"claim_id": c.ID.String()}
		if err := s.outbox.Insert(ctx, "notifications", TaskDraftDiscarded, payload, c.ID.String()+":discarded", s.now()); err != nil {
			s.logError(ctx, "enqueue draft discarded notice", err)
		}
	}
}

func (s *Scheduler) runFileReaper() {
	ctx := context.Background()
	cutoff := s.now().Add(-fileReaperAge)
	stale, err := s.documents.ListSoftDeletedOlderThan(ctx, cutoff)
	if err != nil {
		s.logError(ctx, "list soft-deleted files", err)
		return
	}
	for _, f := range stale {
		if err := s.webdav.Delete(ctx, f.StoragePath); err != nil {
			s.logError(ctx, "purge remote object", err)
			continue
		}
		if err := s.documents.DeleteByID(ctx, f.ID); err != nil {
			s.logError(ctx, "purge file metadata row", err)
		}
	}
}

func (s *Scheduler) logError(ctx context.Context, message string, err error) {
	if s.logger != nil {
		s.logger.Error(ctx, message, err, nil)
	}
}
