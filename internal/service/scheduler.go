package service

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "whatshub/internal/errors"
	"whatshub/internal/metrics"
	"whatshub/internal/models"

	"github.com/sirupsen/logrus"
)

// SchedulerStore is the slice of the database the scheduler needs.
type SchedulerStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListDueScheduledMessages(ctx context.Context, now time.Time) ([]models.Message, error)
	CompareAndSetSchedulingStatus(ctx context.Context, id string, from, to models.SchedulingStatus) (bool, error)
	CancelScheduledMessage(ctx context.Context, id string) (bool, error)
}

// SendFunc performs the gated provider send for an already-stored message.
type SendFunc func(ctx context.Context, msg *models.Message) error

// Scheduler stores future sends and sweeps them out once due. The sweep
// claims each message with a compare-and-set on its scheduling status, so a
// concurrent cancel either wins entirely or loses entirely.
type Scheduler struct {
	store    SchedulerStore
	send     SendFunc
	interval time.Duration
	metrics  *metrics.Registry
	logger   *logrus.Logger

	campaigns *CampaignEngine

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(store SchedulerStore, send SendFunc, campaigns *CampaignEngine, interval time.Duration, registry *metrics.Registry, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		send:      send,
		campaigns: campaigns,
		interval:  interval,
		metrics:   registry,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Schedule persists an outgoing message to be sent at a future time. Times
// at or before now are rejected; callers wanting an immediate send use the
// direct path.
func (s *Scheduler) Schedule(ctx context.Context, msg *models.Message, at time.Time) error {
	if !at.After(time.Now()) {
		return apperrors.ErrScheduleTimeInPast
	}
	scheduled := at.UTC()
	msg.Direction = models.DirectionOutgoing
	msg.Status = models.DeliveryStatusQueued
	msg.IsScheduled = true
	msg.ScheduledTime = &scheduled
	msg.SchedulingStatus = models.SchedulingPending
	return s.store.CreateMessage(ctx, msg)
}

// Cancel withdraws a pending scheduled message. Once the sweep has claimed
// it (or it was already cancelled) the state transition fails.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return apperrors.New(apperrors.ErrCodeNotFound, "scheduled message not found").WithContext("id", id)
	}
	if !msg.IsScheduled || msg.SchedulingStatus != models.SchedulingPending {
		return apperrors.ErrInvalidScheduleState
	}
	ok, err := s.store.CancelScheduledMessage(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// Claimed by the sweep between our read and the update.
		return apperrors.ErrInvalidScheduleState
	}
	return nil
}

// Sweep sends every due pending message. Each is claimed Pending -> Sent
// before the provider call; a lost claim means cancel or another sweep got
// there first. A failed send releases the claim so a later sweep retries.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) {
	due, err := s.store.ListDueScheduledMessages(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list due scheduled messages")
		return
	}

	for i := range due {
		msg := &due[i]
		claimed, err := s.store.CompareAndSetSchedulingStatus(ctx, msg.ID, models.SchedulingPending, models.SchedulingSent)
		if err != nil {
			s.logger.WithField("message", msg.ID).WithError(err).Error("Failed to claim scheduled message")
			continue
		}
		if !claimed {
			continue
		}

		if err := s.send(ctx, msg); err != nil {
			s.release(ctx, msg.ID)
			if errors.Is(err, apperrors.ErrRateLimited) {
				s.logger.WithField("message", msg.ID).Info("Scheduled send deferred by rate limit")
				continue
			}
			s.logger.WithField("message", msg.ID).WithError(err).Error("Scheduled send failed, left pending for retry")
			continue
		}
		s.metrics.Inc(metrics.ScheduledSends)
	}
}

func (s *Scheduler) release(ctx context.Context, id string) {
	if _, err := s.store.CompareAndSetSchedulingStatus(ctx, id, models.SchedulingSent, models.SchedulingPending); err != nil {
		s.logger.WithField("message", id).WithError(err).Error("Failed to release scheduled message claim")
	}
}

// Start runs the periodic loop: each tick sweeps due messages and advances
// campaigns. Stop or context cancellation ends it.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case now := <-ticker.C:
				s.Sweep(ctx, now.UTC())
				if s.campaigns != nil {
					s.campaigns.ProcessCampaigns(ctx, now.UTC())
				}
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
