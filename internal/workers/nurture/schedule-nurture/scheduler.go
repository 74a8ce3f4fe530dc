package schedulenurture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/common/metrics"
	"genieops-engine/internal/models"
)

// followUpStep indexes the email sent by the deferred action.
const followUpStep = 1

// Reasons a due task finished without sending.
const (
	reasonLeadMissing     = "lead_missing"
	reasonFunnelMissing   = "funnel_missing"
	reasonNoSequence      = "no_sequence"
	reasonOptedOut        = "opted_out"
	reasonAlreadyAdvanced = "already_advanced"
)

// Scheduler keeps follow-up emails as durable task records in Redis:
//
//	{prefix}task:{id}      hash with the task fields
//	{prefix}due            sorted set of scheduled task ids scored by due time (unix ms)
//	{prefix}lead:{leadID}  set of task ids for a lead
//	{prefix}processing     sorted set of claimed task ids scored by claim time (unix ms)
//
// A task is claimed by moving it from the due set to the processing set in one script, so
// with several pollers each task is processed once. A claim left unfinished for StaleAfter
// (a crash mid-send) is moved back to the due set by the next poll.
type Scheduler struct {
	config  *Config
	redis   redis.UniversalClient
	leads   LeadStore
	funnels FunnelStore
	sender  Sender
	logger  logger.Logger
	now     func() time.Time
}

func NewScheduler(config *Config, rdb redis.UniversalClient, leads LeadStore, funnels FunnelStore, sender Sender, log logger.Logger) *Scheduler {
	return &Scheduler{
		config:  config,
		redis:   rdb,
		leads:   leads,
		funnels: funnels,
		sender:  sender,
		logger:  log.WithFields(map[string]interface{}{"component": "nurture-scheduler"}),
		now:     time.Now,
	}
}

func (s *Scheduler) taskKey(id string) string { return s.config.KeyPrefix + "task:" + id }

func (s *Scheduler) dueKey() string { return s.config.KeyPrefix + "due" }

func (s *Scheduler) processingKey() string { return s.config.KeyPrefix + "processing" }

// claimScript moves ARGV[1] from the due set to the processing set scored ARGV[2].
var claimScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 1 then
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
	return 1
end
return 0
`)

func (s *Scheduler) leadKey(leadID int64) string {
	return s.config.KeyPrefix + "lead:" + strconv.FormatInt(leadID, 10)
}

func unixMilli(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func fromUnixMilli(s string) time.Time {
	ms, _ := strconv.ParseInt(s, 10, 64)
	return time.UnixMilli(ms).UTC()
}

// Schedule records a follow-up for leadID due after the configured delay and returns its id.
// It does not wait for the email.
func (s *Scheduler) Schedule(ctx context.Context, leadID, funnelID int64) (string, error) {
	id := uuid.NewString()
	now := s.now()
	due := now.Add(s.config.Delay)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.taskKey(id), map[string]interface{}{
			"id":         id,
			"lead_id":    leadID,
			"funnel_id":  funnelID,
			"state":      string(models.NurtureScheduled),
			"attempts":   0,
			"due_at":     unixMilli(due),
			"updated_at": unixMilli(now),
			"last_error": "",
		})
		pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: float64(due.UnixMilli()), Member: id})
		pipe.SAdd(ctx, s.leadKey(leadID), id)
		return nil
	})
	if err != nil {
		return "", apperrors.NewDatabaseError("nurture.schedule", err)
	}

	metrics.NurtureEmails.WithLabelValues(strconv.Itoa(followUpStep), "scheduled").Inc()
	s.logger.Info("nurture scheduled", map[string]interface{}{
		"taskId":   id,
		"leadId":   leadID,
		"funnelId": funnelID,
		"dueAt":    due.UTC().Format(time.RFC3339),
	})
	return id, nil
}

// Cancel withdraws every scheduled task of leadID and returns how many were cancelled.
func (s *Scheduler) Cancel(ctx context.Context, leadID int64) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.leadKey(leadID)).Result()
	if err != nil {
		return 0, apperrors.NewDatabaseError("nurture.cancel", err)
	}

	cancelled := 0
	for _, id := range ids {
		// Only a task still in the due set can be cancelled; a claimed one is in flight.
		removed, err := s.redis.ZRem(ctx, s.dueKey(), id).Result()
		if err != nil {
			return cancelled, apperrors.NewDatabaseError("nurture.cancel", err)
		}
		if removed == 0 {
			continue
		}
		if err := s.setState(ctx, id, models.NurtureCancelled, "unsubscribed"); err != nil {
			return cancelled, err
		}
		cancelled++
	}

	if cancelled > 0 {
		metrics.NurtureEmails.WithLabelValues(strconv.Itoa(followUpStep), "cancelled").Add(float64(cancelled))
		s.logger.Info("nurture cancelled", map[string]interface{}{"leadId": leadID, "tasks": cancelled})
	}
	return cancelled, nil
}

// Task reads one task record.
func (s *Scheduler) Task(ctx context.Context, id string) (*models.NurtureTask, error) {
	fields, err := s.redis.HGetAll(ctx, s.taskKey(id)).Result()
	if err != nil {
		return nil, apperrors.NewDatabaseError("nurture.get", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.NewNotFoundError("nurture task", id)
	}

	leadID, _ := strconv.ParseInt(fields["lead_id"], 10, 64)
	funnelID, _ := strconv.ParseInt(fields["funnel_id"], 10, 64)
	attempts, _ := strconv.Atoi(fields["attempts"])

	return &models.NurtureTask{
		ID:        id,
		LeadID:    leadID,
		FunnelID:  funnelID,
		State:     models.NurtureState(fields["state"]),
		Attempts:  attempts,
		DueAt:     fromUnixMilli(fields["due_at"]),
		LastError: fields["last_error"],
		UpdatedAt: fromUnixMilli(fields["updated_at"]),
	}, nil
}

// Tasks lists the tasks recorded for a lead.
func (s *Scheduler) Tasks(ctx context.Context, leadID int64) ([]*models.NurtureTask, error) {
	ids, err := s.redis.SMembers(ctx, s.leadKey(leadID)).Result()
	if err != nil {
		return nil, apperrors.NewDatabaseError("nurture.list", err)
	}
	tasks := make([]*models.NurtureTask, 0, len(ids))
	for _, id := range ids {
		task, err := s.Task(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Scheduler) setState(ctx context.Context, id string, state models.NurtureState, lastError string) error {
	err := s.redis.HSet(ctx, s.taskKey(id), map[string]interface{}{
		"state":      string(state),
		"last_error": lastError,
		"updated_at": unixMilli(s.now()),
	}).Err()
	if err != nil {
		return apperrors.NewDatabaseError("nurture.update", err)
	}
	return nil
}

// Run polls for due tasks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info("nurture poller started", map[string]interface{}{
		"pollInterval": s.config.PollInterval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("nurture poller stopped", nil)
			return nil
		case <-ticker.C:
			if _, err := s.ProcessDue(ctx, s.now()); err != nil && ctx.Err() == nil {
				s.logger.Error("nurture poll failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// ProcessDue re-queues stale claims, then handles every task due at or before now and
// returns how many it claimed. Once ctx is cancelled it stops claiming; a task already
// claimed is still settled.
func (s *Scheduler) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if _, err := s.Recover(ctx, now); err != nil {
		s.logger.Error("nurture recovery failed", map[string]interface{}{"error": err.Error()})
	}

	ids, err := s.redis.ZRangeByScore(ctx, s.dueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   unixMilli(now),
		Count: s.config.BatchSize,
	}).Result()
	if err != nil {
		return 0, apperrors.NewDatabaseError("nurture.poll", err)
	}

	claimed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		won, err := claimScript.Run(ctx, s.redis,
			[]string{s.dueKey(), s.processingKey()}, id, now.UnixMilli()).Int()
		if err != nil {
			return claimed, apperrors.NewDatabaseError("nurture.claim", err)
		}
		if won == 0 {
			continue
		}
		claimed++
		s.process(ctx, id, now)
	}
	return claimed, nil
}

// Recover moves claims older than StaleAfter back to the due set when their task is still
// scheduled, and drops the rest. It returns how many tasks were re-queued.
func (s *Scheduler) Recover(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.redis.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: unixMilli(now.Add(-s.config.StaleAfter)),
	}).Result()
	if err != nil {
		return 0, apperrors.NewDatabaseError("nurture.recover", err)
	}

	requeued := 0
	for _, id := range ids {
		task, err := s.Task(ctx, id)
		if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return requeued, err
		}
		if task == nil || task.State != models.NurtureScheduled {
			if err := s.redis.ZRem(ctx, s.processingKey(), id).Err(); err != nil {
				return requeued, apperrors.NewDatabaseError("nurture.recover", err)
			}
			continue
		}
		if err := s.requeue(ctx, task, now, task.Attempts, "claim expired"); err != nil {
			return requeued, err
		}
		requeued++
		s.logger.Warn("nurture claim expired, re-queued", map[string]interface{}{
			"taskId": id,
			"leadId": task.LeadID,
		})
	}
	return requeued, nil
}

func (s *Scheduler) process(ctx context.Context, id string, now time.Time) {
	// Bookkeeping outlives the poll: a claimed task must always be settled.
	store := context.WithoutCancel(ctx)

	task, err := s.Task(store, id)
	if err != nil {
		s.logger.Error("nurture task unreadable", map[string]interface{}{"taskId": id, "error": err.Error()})
		return
	}
	if task.State != models.NurtureScheduled {
		s.release(store, id)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	result, err := s.deliver(sendCtx, task.LeadID, task.FunnelID)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted by shutdown; the attempt does not count.
			if err := s.requeue(store, task, now, task.Attempts, "interrupted"); err != nil {
				s.logger.Error("nurture task not re-queued", map[string]interface{}{"taskId": id, "error": err.Error()})
			}
			return
		}
		s.retry(store, task, now, err)
		return
	}

	state := models.NurtureSent
	if !result.Sent {
		state = models.NurtureCancelled
	}
	if err := s.finish(store, id, state, result.Reason); err != nil {
		s.logger.Error("nurture task state not saved", map[string]interface{}{"taskId": id, "error": err.Error()})
	}
}

// requeue puts task back in the due set at due with the given attempt count.
func (s *Scheduler) requeue(ctx context.Context, task *models.NurtureTask, due time.Time, attempts int, lastError string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.taskKey(task.ID), map[string]interface{}{
			"attempts":   attempts,
			"due_at":     unixMilli(due),
			"last_error": lastError,
			"updated_at": unixMilli(s.now()),
		})
		pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: float64(due.UnixMilli()), Member: task.ID})
		pipe.ZRem(ctx, s.processingKey(), task.ID)
		return nil
	})
	if err != nil {
		return apperrors.NewDatabaseError("nurture.requeue", err)
	}
	return nil
}

// finish records a terminal state and releases the claim.
func (s *Scheduler) finish(ctx context.Context, id string, state models.NurtureState, lastError string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.taskKey(id), map[string]interface{}{
			"state":      string(state),
			"last_error": lastError,
			"updated_at": unixMilli(s.now()),
		})
		pipe.ZRem(ctx, s.processingKey(), id)
		return nil
	})
	if err != nil {
		return apperrors.NewDatabaseError("nurture.update", err)
	}
	return nil
}

func (s *Scheduler) release(ctx context.Context, id string) {
	if err := s.redis.ZRem(ctx, s.processingKey(), id).Err(); err != nil {
		s.logger.Error("nurture claim not released", map[string]interface{}{"taskId": id, "error": err.Error()})
	}
}

// retry reschedules a failed attempt with exponential backoff, or marks the task failed
// once it has used MaxAttempts.
func (s *Scheduler) retry(ctx context.Context, task *models.NurtureTask, now time.Time, cause error) {
	attempts := task.Attempts + 1
	fields := map[string]interface{}{
		"attempts":   attempts,
		"last_error": cause.Error(),
		"updated_at": unixMilli(now),
	}

	if attempts >= s.config.MaxAttempts {
		fields["state"] = string(models.NurtureFailed)
		_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.taskKey(task.ID), fields)
			pipe.ZRem(ctx, s.processingKey(), task.ID)
			return nil
		})
		if err != nil {
			s.logger.Error("nurture task state not saved", map[string]interface{}{"taskId": task.ID, "error": err.Error()})
		}
		metrics.NurtureEmails.WithLabelValues(strconv.Itoa(followUpStep), "failed").Inc()
		s.logger.Error("nurture gave up", map[string]interface{}{
			"taskId":   task.ID,
			"leadId":   task.LeadID,
			"attempts": attempts,
			"error":    cause.Error(),
		})
		return
	}

	due := now.Add(s.config.RetryBackoff << (attempts - 1))
	if err := s.requeue(ctx, task, due, attempts, cause.Error()); err != nil {
		s.logger.Error("nurture retry not saved", map[string]interface{}{"taskId": task.ID, "error": err.Error()})
		return
	}

	metrics.NurtureEmails.WithLabelValues(strconv.Itoa(followUpStep), "retry").Inc()
	s.logger.Warn("nurture attempt failed, retrying", map[string]interface{}{
		"taskId":   task.ID,
		"attempts": attempts,
		"retryAt":  due.UTC().Format(time.RFC3339),
		"error":    cause.Error(),
	})
}

// Delivery is the outcome of one follow-up attempt that did not error.
type Delivery struct {
	Sent   bool
	Stage  int
	Reason string
}

// SendFollowUp runs the follow-up for one lead immediately, outside the task queue.
func (s *Scheduler) SendFollowUp(ctx context.Context, leadID, funnelID int64) (*Delivery, error) {
	return s.deliver(ctx, leadID, funnelID)
}

// deliver re-reads the lead and funnel, sends emails[1] and moves the lead to the final
// stage. Missing records and opted-out leads are no-ops. Store read errors and transport
// failures are returned so the caller can retry.
func (s *Scheduler) deliver(ctx context.Context, leadID, funnelID int64) (*Delivery, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return s.skip(leadID, models.NurtureStageWelcome, reasonLeadMissing), nil
		}
		return nil, err
	}
	if lead.NurtureStage >= models.NurtureStageComplete {
		return s.skip(leadID, lead.NurtureStage, reasonAlreadyAdvanced), nil
	}
	if !lead.OptedIntoNewsletter {
		return s.skip(leadID, lead.NurtureStage, reasonOptedOut), nil
	}

	funnel, err := s.funnels.GetFunnel(ctx, funnelID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return s.skip(leadID, lead.NurtureStage, reasonFunnelMissing), nil
		}
		return nil, err
	}
	step, ok := funnel.Step(followUpStep)
	if !ok {
		return s.skip(leadID, lead.NurtureStage, reasonNoSequence), nil
	}

	if !s.sender.Send(ctx, lead.Email, step.Subject, step.Body) {
		metrics.NurtureEmails.WithLabelValues(strconv.Itoa(followUpStep), "delivery_failure").Inc()
		return nil, apperrors.NewDeliveryFailureError(lead.Email, errors.New("transport did not accept the follow-up"))
	}
	metrics.NurtureEmails.WithLabelValues(strconv.Itoa(followUpStep), "sent").Inc()

	delivery := &Delivery{Sent: true, Stage: models.NurtureStageComplete}
	advanced, err := s.leads.AdvanceNurtureStage(ctx, lead.ID, models.NurtureStageComplete, s.now().UTC())
	switch {
	case err != nil:
		// The email is out; retrying would send it twice.
		delivery.Reason = fmt.Sprintf("stage not saved: %v", err)
		s.logger.Error("nurture stage update failed", map[string]interface{}{"leadId": lead.ID, "error": err.Error()})
	case !advanced:
		delivery.Reason = reasonAlreadyAdvanced
	}

	s.logger.Info("nurture email sent", map[string]interface{}{
		"leadId":   lead.ID,
		"funnelId": funnelID,
		"subject":  step.Subject,
	})
	return delivery, nil
}

func (s *Scheduler) skip(leadID int64, stage int, reason string) *Delivery {
	metrics.NurtureEmails.WithLabelValues(strconv.Itoa(followUpStep), "skipped").Inc()
	s.logger.Info("nurture skipped", map[string]interface{}{"leadId": leadID, "reason": reason})
	return &Delivery{Sent: false, Stage: stage, Reason: reason}
}
