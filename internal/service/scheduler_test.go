package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	apperrors "whatshub/internal/errors"
	"whatshub/internal/metrics"
	"whatshub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSchedulerStore struct {
	messages map[string]*models.Message
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{messages: make(map[string]*models.Message)}
}

func (m *mockSchedulerStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", len(m.messages)+1)
	}
	clone := *msg
	m.messages[msg.ID] = &clone
	return nil
}

func (m *mockSchedulerStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, nil
	}
	clone := *msg
	return &clone, nil
}

func (m *mockSchedulerStore) ListDueScheduledMessages(ctx context.Context, now time.Time) ([]models.Message, error) {
	var due []models.Message
	for _, msg := range m.messages {
		if msg.IsScheduled && msg.SchedulingStatus == models.SchedulingPending &&
			msg.ScheduledTime != nil && !msg.ScheduledTime.After(now) {
			due = append(due, *msg)
		}
	}
	return due, nil
}

func (m *mockSchedulerStore) CompareAndSetSchedulingStatus(ctx context.Context, id string, from, to models.SchedulingStatus) (bool, error) {
	msg, ok := m.messages[id]
	if !ok || msg.SchedulingStatus != from {
		return false, nil
	}
	msg.SchedulingStatus = to
	return true, nil
}

func (m *mockSchedulerStore) CancelScheduledMessage(ctx context.Context, id string) (bool, error) {
	msg, ok := m.messages[id]
	if !ok || !msg.IsScheduled || msg.SchedulingStatus != models.SchedulingPending {
		return false, nil
	}
	msg.SchedulingStatus = models.SchedulingCancelled
	msg.Status = models.DeliveryStatusCancelled
	return true, nil
}

type recordingSend struct {
	sent []string
	err  error
}

func (r *recordingSend) send(ctx context.Context, msg *models.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg.ID)
	return nil
}

func setupScheduler(t *testing.T) (*Scheduler, *mockSchedulerStore, *recordingSend) {
	t.Helper()
	store := newMockSchedulerStore()
	sends := &recordingSend{}
	s := NewScheduler(store, sends.send, nil, time.Minute, metrics.NewRegistry(), testLogger())
	return s, store, sends
}

func TestScheduleFutureMessage(t *testing.T) {
	s, store, _ := setupScheduler(t)

	msg := &models.Message{To: "15551234", Body: "later", Account: "primary", ContentType: models.ContentTypeText}
	at := time.Now().Add(time.Hour)
	require.NoError(t, s.Schedule(context.Background(), msg, at))

	stored := store.messages[msg.ID]
	require.NotNil(t, stored)
	assert.True(t, stored.IsScheduled)
	assert.Equal(t, models.SchedulingPending, stored.SchedulingStatus)
	assert.Equal(t, models.DirectionOutgoing, stored.Direction)
	require.NotNil(t, stored.ScheduledTime)
	assert.WithinDuration(t, at.UTC(), *stored.ScheduledTime, time.Second)
}

func TestScheduleRejectsPastTime(t *testing.T) {
	s, store, _ := setupScheduler(t)

	msg := &models.Message{To: "15551234", Body: "too late"}
	err := s.Schedule(context.Background(), msg, time.Now().Add(-time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrScheduleTimeInPast)
	assert.Empty(t, store.messages)
}

func TestSweepSendsDueMessages(t *testing.T) {
	s, store, sends := setupScheduler(t)

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	due := &models.Message{ID: "due", IsScheduled: true, ScheduledTime: &past, SchedulingStatus: models.SchedulingPending}
	notDue := &models.Message{ID: "later", IsScheduled: true, ScheduledTime: &future, SchedulingStatus: models.SchedulingPending}
	require.NoError(t, store.CreateMessage(context.Background(), due))
	require.NoError(t, store.CreateMessage(context.Background(), notDue))

	s.Sweep(context.Background(), time.Now().UTC())

	assert.Equal(t, []string{"due"}, sends.sent)
	assert.Equal(t, models.SchedulingSent, store.messages["due"].SchedulingStatus)
	assert.Equal(t, models.SchedulingPending, store.messages["later"].SchedulingStatus)
}

func TestSweepSkipsAlreadyClaimed(t *testing.T) {
	s, store, sends := setupScheduler(t)

	past := time.Now().UTC().Add(-time.Minute)
	msg := &models.Message{ID: "gone", IsScheduled: true, ScheduledTime: &past, SchedulingStatus: models.SchedulingPending}
	require.NoError(t, store.CreateMessage(context.Background(), msg))

	// A concurrent cancel wins between listing and claiming.
	_, err := store.CancelScheduledMessage(context.Background(), "gone")
	require.NoError(t, err)

	s.Sweep(context.Background(), time.Now().UTC())
	assert.Empty(t, sends.sent)
}

func TestSweepReleasesClaimOnRateLimit(t *testing.T) {
	s, store, sends := setupScheduler(t)
	sends.err = apperrors.ErrRateLimited

	past := time.Now().UTC().Add(-time.Minute)
	msg := &models.Message{ID: "deferred", IsScheduled: true, ScheduledTime: &past, SchedulingStatus: models.SchedulingPending}
	require.NoError(t, store.CreateMessage(context.Background(), msg))

	s.Sweep(context.Background(), time.Now().UTC())

	// Claim rolled back: a later sweep picks the message up again.
	assert.Equal(t, models.SchedulingPending, store.messages["deferred"].SchedulingStatus)

	sends.err = nil
	s.Sweep(context.Background(), time.Now().UTC())
	assert.Equal(t, []string{"deferred"}, sends.sent)
}

func TestSweepRetriesAfterSendFailure(t *testing.T) {
	s, store, sends := setupScheduler(t)
	sends.err = fmt.Errorf("provider down")

	past := time.Now().UTC().Add(-time.Minute)
	msg := &models.Message{ID: "failed", IsScheduled: true, ScheduledTime: &past, SchedulingStatus: models.SchedulingPending}
	require.NoError(t, store.CreateMessage(context.Background(), msg))

	s.Sweep(context.Background(), time.Now().UTC())

	// The claim is released: the message stays pending, never falsely sent.
	assert.Equal(t, models.SchedulingPending, store.messages["failed"].SchedulingStatus)
	assert.Empty(t, sends.sent)

	sends.err = nil
	s.Sweep(context.Background(), time.Now().UTC())
	assert.Equal(t, []string{"failed"}, sends.sent)
	assert.Equal(t, models.SchedulingSent, store.messages["failed"].SchedulingStatus)
}

func TestCancelPendingSchedule(t *testing.T) {
	s, store, _ := setupScheduler(t)

	msg := &models.Message{To: "15551234"}
	require.NoError(t, s.Schedule(context.Background(), msg, time.Now().Add(time.Hour)))

	require.NoError(t, s.Cancel(context.Background(), msg.ID))
	assert.Equal(t, models.SchedulingCancelled, store.messages[msg.ID].SchedulingStatus)
	assert.Equal(t, models.DeliveryStatusCancelled, store.messages[msg.ID].Status)
}

func TestCancelAfterSweepClaim(t *testing.T) {
	s, store, _ := setupScheduler(t)

	past := time.Now().UTC().Add(-time.Minute)
	msg := &models.Message{ID: "sent", IsScheduled: true, ScheduledTime: &past, SchedulingStatus: models.SchedulingPending}
	require.NoError(t, store.CreateMessage(context.Background(), msg))

	s.Sweep(context.Background(), time.Now().UTC())

	err := s.Cancel(context.Background(), "sent")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidScheduleState)
}

func TestCancelUnknownMessage(t *testing.T) {
	s, _, _ := setupScheduler(t)
	err := s.Cancel(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}
