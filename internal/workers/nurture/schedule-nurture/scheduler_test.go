package schedulenurture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/logger"
	"genieops-engine/internal/models"
)

type fakeLeads struct {
	mu       sync.Mutex
	leads    map[int64]*models.Lead
	getErr   error
	advances int
}

func (f *fakeLeads) GetLead(_ context.Context, id int64) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	lead, ok := f.leads[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("lead", id)
	}
	cp := *lead
	return &cp, nil
}

func (f *fakeLeads) AdvanceNurtureStage(_ context.Context, leadID int64, stage int, sentAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[leadID]
	if !ok || lead.NurtureStage >= stage {
		return false, nil
	}
	lead.NurtureStage = stage
	lead.LastEmailSentAt = &sentAt
	f.advances++
	return true, nil
}

type fakeFunnels map[int64]*models.Funnel

func (f fakeFunnels) GetFunnel(_ context.Context, id int64) (*models.Funnel, error) {
	funnel, ok := f[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("funnel", id)
	}
	return funnel, nil
}

type sentMail struct{ to, subject, body string }

type fakeSender struct {
	mu     sync.Mutex
	accept bool
	sent   []sentMail
	// onSend runs before each send is recorded.
	onSend func()
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) bool {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to, subject, body})
	return f.accept
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	scheduler *Scheduler
	leads     *fakeLeads
	sender    *fakeSender
	mr        *miniredis.Miniredis
	client    *redis.Client
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	leads := &fakeLeads{leads: map[int64]*models.Lead{
		1: {ID: 1, Email: "lead@example.com", FunnelID: 10, OptedIntoNewsletter: true},
		2: {ID: 2, Email: "quiet@example.com", FunnelID: 10, OptedIntoNewsletter: false},
		3: {ID: 3, Email: "bare@example.com", FunnelID: 11, OptedIntoNewsletter: true},
	}}
	funnels := fakeFunnels{
		10: {ID: 10, Emails: []models.NurtureStep{
			{Subject: "Welcome", Body: "Here is your asset"},
			{Subject: "Day 2", Body: "Did you try it?"},
		}},
		11: {ID: 11, Emails: []models.NurtureStep{{Subject: "Welcome", Body: "Only one"}}},
	}
	sender := &fakeSender{accept: true}

	cfg := DefaultConfig()
	s := NewScheduler(cfg, client, leads, funnels, sender, logger.NewTestLogger(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	return &fixture{scheduler: s, leads: leads, sender: sender, mr: mr, client: client, now: now}
}

func TestScheduler_SendsFollowUpOnceWhenDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.scheduler.Schedule(ctx, 1, 10)
	require.NoError(t, err)

	task, err := f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureScheduled, task.State)
	assert.Equal(t, f.now.Add(time.Minute), task.DueAt)

	n, err := f.scheduler.ProcessDue(ctx, f.now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, n, "not due yet")
	assert.Zero(t, f.sender.count())

	n, err = f.scheduler.ProcessDue(ctx, f.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.scheduler.ProcessDue(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, sentMail{"lead@example.com", "Day 2", "Did you try it?"}, f.sender.sent[0])

	lead, err := f.leads.GetLead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureStageComplete, lead.NurtureStage)
	require.NotNil(t, lead.LastEmailSentAt)

	task, err = f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureSent, task.State)
}

func TestScheduler_NoOpOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		leadID   int64
		funnelID int64
		prepare  func(f *fixture)
		reason   string
	}{
		{name: "opted out", leadID: 2, funnelID: 10, reason: reasonOptedOut},
		{name: "single email sequence", leadID: 3, funnelID: 11, reason: reasonNoSequence},
		{name: "lead deleted", leadID: 99, funnelID: 10, reason: reasonLeadMissing},
		{name: "funnel deleted", leadID: 1, funnelID: 404, reason: reasonFunnelMissing},
		{
			name:     "already advanced",
			leadID:   1,
			funnelID: 10,
			prepare:  func(f *fixture) { f.leads.leads[1].NurtureStage = models.NurtureStageComplete },
			reason:   reasonAlreadyAdvanced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			ctx := context.Background()

			id, err := f.scheduler.Schedule(ctx, tt.leadID, tt.funnelID)
			require.NoError(t, err)

			_, err = f.scheduler.ProcessDue(ctx, f.now.Add(time.Minute))
			require.NoError(t, err)

			assert.Zero(t, f.sender.count())
			task, err := f.scheduler.Task(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, models.NurtureCancelled, task.State)
			assert.Equal(t, tt.reason, task.LastError)
		})
	}
}

func TestScheduler_CancelWithdrawsPendingTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.scheduler.Schedule(ctx, 1, 10)
	require.NoError(t, err)

	n, err := f.scheduler.Cancel(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.scheduler.Cancel(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n, "cancel is idempotent")

	claimed, err := f.scheduler.ProcessDue(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, claimed)
	assert.Zero(t, f.sender.count())

	task, err := f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureCancelled, task.State)

	tasks, err := f.scheduler.Tasks(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestScheduler_RetriesWithBackoffThenFails(t *testing.T) {
	f := newFixture(t)
	f.sender.accept = false
	ctx := context.Background()

	id, err := f.scheduler.Schedule(ctx, 1, 10)
	require.NoError(t, err)

	at := f.now.Add(time.Minute)
	_, err = f.scheduler.ProcessDue(ctx, at)
	require.NoError(t, err)

	task, err := f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureScheduled, task.State)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, at.Add(30*time.Second), task.DueAt)
	assert.Contains(t, task.LastError, "DELIVERY_FAILURE")

	at = task.DueAt
	_, err = f.scheduler.ProcessDue(ctx, at)
	require.NoError(t, err)
	task, err = f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, at.Add(time.Minute), task.DueAt, "backoff doubles")

	_, err = f.scheduler.ProcessDue(ctx, task.DueAt)
	require.NoError(t, err)
	task, err = f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureFailed, task.State)
	assert.Equal(t, 3, task.Attempts)

	assert.Equal(t, 3, f.sender.count())
	assert.Zero(t, f.leads.advances, "stage only moves after a send")

	claimed, err := f.scheduler.ProcessDue(ctx, f.now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, claimed)
}

func TestScheduler_StoreErrorIsRetried(t *testing.T) {
	f := newFixture(t)
	f.leads.getErr = apperrors.NewDatabaseError("get lead", errors.New("connection reset"))
	ctx := context.Background()

	id, err := f.scheduler.Schedule(ctx, 1, 10)
	require.NoError(t, err)

	_, err = f.scheduler.ProcessDue(ctx, f.now.Add(time.Minute))
	require.NoError(t, err)

	task, err := f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureScheduled, task.State)
	assert.Equal(t, 1, task.Attempts)

	f.leads.getErr = nil
	_, err = f.scheduler.ProcessDue(ctx, task.DueAt)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sender.count())
}

func TestScheduler_InterruptedSendIsRequeued(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := f.scheduler.Schedule(context.Background(), 1, 10)
	require.NoError(t, err)
	f.scheduler.now = func() time.Time { return f.now.Add(time.Second) }
	_, err = f.scheduler.Schedule(context.Background(), 3, 11)
	require.NoError(t, err)
	f.scheduler.now = func() time.Time { return f.now }

	// Shutdown arrives while the first email is in flight.
	f.sender.accept = false
	f.sender.onSend = cancel

	at := f.now.Add(61 * time.Second)
	claimed, err := f.scheduler.ProcessDue(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed, "no new claims after cancellation")

	task, err := f.scheduler.Task(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureScheduled, task.State)
	assert.Zero(t, task.Attempts, "an interrupted attempt does not count")
	assert.Equal(t, "interrupted", task.LastError)

	score, err := f.client.ZScore(context.Background(), "nurture:due", id).Result()
	require.NoError(t, err)
	assert.Equal(t, float64(at.UnixMilli()), score)
	assert.Empty(t, mustMembers(t, f, "nurture:processing"))

	f.sender.accept = true
	f.sender.onSend = nil
	claimed, err = f.scheduler.ProcessDue(context.Background(), at.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)

	task, err = f.scheduler.Task(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureSent, task.State)
	assert.Equal(t, 1, f.leads.advances)
}

func TestScheduler_StaleClaimIsRecovered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.scheduler.Schedule(ctx, 1, 10)
	require.NoError(t, err)

	// A poller claimed the task and died before settling it.
	claimedAt := f.now.Add(time.Minute)
	won, err := claimScript.Run(ctx, f.client,
		[]string{"nurture:due", "nurture:processing"}, id, claimedAt.UnixMilli()).Int()
	require.NoError(t, err)
	require.Equal(t, 1, won)

	claimed, err := f.scheduler.ProcessDue(ctx, claimedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, claimed, "claim is not stale yet")
	assert.Zero(t, f.sender.count())

	late := claimedAt.Add(f.scheduler.config.StaleAfter)
	claimed, err = f.scheduler.ProcessDue(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, f.sender.count())

	task, err := f.scheduler.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NurtureSent, task.State)
	assert.Empty(t, mustMembers(t, f, "nurture:processing"))
}

func TestScheduler_RecoverDropsSettledClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.scheduler.Schedule(ctx, 1, 10)
	require.NoError(t, err)
	require.NoError(t, f.client.ZAdd(ctx, "nurture:processing", redis.Z{Score: float64(f.now.UnixMilli()), Member: id}).Err())
	require.NoError(t, f.client.ZAdd(ctx, "nurture:processing", redis.Z{Score: float64(f.now.UnixMilli()), Member: "gone"}).Err())
	require.NoError(t, f.scheduler.setState(ctx, id, models.NurtureSent, ""))

	requeued, err := f.scheduler.Recover(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Empty(t, mustMembers(t, f, "nurture:processing"))
}

func mustMembers(t *testing.T, f *fixture, key string) []string {
	t.Helper()
	members, err := f.client.ZRange(context.Background(), key, 0, -1).Result()
	require.NoError(t, err)
	return members
}

func TestScheduler_TaskNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler.Task(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f.scheduler.config.PollInterval = 10 * time.Millisecond
	f.scheduler.config.Delay = 0
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.scheduler.Schedule(ctx, 1, 10)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	require.Eventually(t, func() bool { return f.sender.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_ = f.client.Close()
	f.mr.Close()
	assert.Equal(t, 1, f.sender.count())
}

func TestHandler_Execute(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(DefaultConfig(), f.scheduler, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{LeadID: 1, FunnelID: 10})
	require.NoError(t, err)
	assert.True(t, out.Sent)
	assert.Equal(t, models.NurtureStageComplete, out.Stage)

	out, err = h.Execute(context.Background(), &Input{LeadID: 1, FunnelID: 10})
	require.NoError(t, err)
	assert.False(t, out.Sent)
	assert.Equal(t, reasonAlreadyAdvanced, out.Reason)

	_, err = h.Execute(context.Background(), &Input{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}
