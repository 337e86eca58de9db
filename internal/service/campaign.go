package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"whatshub/internal/constants"
	apperrors "whatshub/internal/errors"
	"whatshub/internal/metrics"
	"whatshub/internal/models"

	"github.com/sirupsen/logrus"
)

// CampaignStore is the slice of the database the campaign engine needs.
type CampaignStore interface {
	GetCampaign(ctx context.Context, name string) (*models.Campaign, error)
	SaveCampaign(ctx context.Context, c *models.Campaign) error
	UpdateCampaignProgress(ctx context.Context, c *models.Campaign) error
	ListDueScheduledCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
	ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
	ListContacts(ctx context.Context) ([]models.Contact, error)
	ReplaceRecipients(ctx context.Context, campaign string, recipients []models.Recipient) error
	ListPendingRecipients(ctx context.Context, campaign string, limit int) ([]models.Recipient, error)
	CountPendingRecipients(ctx context.Context, campaign string) (int, error)
	UpdateRecipient(ctx context.Context, id int64, status models.RecipientStatus, messageID string) error
}

// MessageSender is the outbound path the engine sends each recipient through.
type MessageSender interface {
	CreateAndSend(ctx context.Context, msg *models.Message) error
}

// CampaignEngine drives broadcast campaigns: audience resolution, batched
// sends, and progress accounting. Batches for the same campaign never run
// concurrently; different campaigns may.
type CampaignEngine struct {
	store     CampaignStore
	sender    MessageSender
	batchSize int
	metrics   *metrics.Registry
	logger    *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCampaignEngine(store CampaignStore, sender MessageSender, batchSize int, registry *metrics.Registry, logger *logrus.Logger) *CampaignEngine {
	if batchSize <= 0 {
		batchSize = constants.DefaultCampaignBatchSize
	}
	return &CampaignEngine{
		store:     store,
		sender:    sender,
		batchSize: batchSize,
		metrics:   registry,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (e *CampaignEngine) lock(campaign string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[campaign]
	if !ok {
		l = &sync.Mutex{}
		e.locks[campaign] = l
	}
	return l
}

// Populate resolves the campaign's audience into an ordered recipient list,
// replacing any prior population. Contacts without a phone number are
// skipped; tag targeting matches contacts carrying at least one target tag.
func (e *CampaignEngine) Populate(ctx context.Context, campaign *models.Campaign) error {
	contacts, err := e.store.ListContacts(ctx)
	if err != nil {
		return err
	}

	var recipients []models.Recipient
	position := 0
	for _, contact := range contacts {
		if contact.Phone == "" {
			continue
		}
		if campaign.AudienceType == models.AudienceTaggedContacts && !hasAnyTag(contact.Tags, campaign.TargetTags) {
			continue
		}
		recipients = append(recipients, models.Recipient{
			Campaign:    campaign.Name,
			ContactName: contact.Name,
			Phone:       contact.Phone,
			Status:      models.RecipientPending,
			Position:    position,
		})
		position++
	}

	if err := e.store.ReplaceRecipients(ctx, campaign.Name, recipients); err != nil {
		return err
	}

	campaign.TotalRecipients = len(recipients)
	campaign.SentCount = 0
	campaign.FailedCount = 0
	return e.store.UpdateCampaignProgress(ctx, campaign)
}

func hasAnyTag(tags, targets []string) bool {
	for _, tag := range tags {
		for _, target := range targets {
			if tag == target {
				return true
			}
		}
	}
	return false
}

// Start moves a campaign into Running and populates its audience if that has
// not happened yet. Only Draft and Scheduled campaigns can start.
func (e *CampaignEngine) Start(ctx context.Context, name string) error {
	campaign, err := e.store.GetCampaign(ctx, name)
	if err != nil {
		return err
	}
	if campaign == nil {
		return apperrors.New(apperrors.ErrCodeNotFound, "campaign not found").WithContext("campaign", name)
	}
	if campaign.Status != models.CampaignDraft && campaign.Status != models.CampaignScheduled {
		return apperrors.New(apperrors.ErrCodeInvalidState, "campaign cannot start from its current status").
			WithContext("campaign", name).
			WithContext("status", string(campaign.Status))
	}

	if campaign.TotalRecipients == 0 {
		if err := e.Populate(ctx, campaign); err != nil {
			return err
		}
	}

	campaign.Status = models.CampaignRunning
	return e.store.UpdateCampaignProgress(ctx, campaign)
}

// ProcessBatch sends one batch of pending recipients for a running campaign.
// Each recipient gets its own Message; a rate-limited send leaves the
// recipient Pending for a later batch, any other failure marks it Failed.
// When no pending recipients remain the campaign completes.
func (e *CampaignEngine) ProcessBatch(ctx context.Context, name string) error {
	l := e.lock(name)
	l.Lock()
	defer l.Unlock()

	campaign, err := e.store.GetCampaign(ctx, name)
	if err != nil {
		return err
	}
	if campaign == nil || campaign.Status != models.CampaignRunning {
		return nil
	}

	pending, err := e.store.ListPendingRecipients(ctx, name, e.batchSize)
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, recipient := range pending {
		msg := &models.Message{
			To:          recipient.Phone,
			ContentType: models.ContentTypeTemplate,
			Template:    campaign.Template,
			Account:     campaign.Account,
			CampaignRef: campaign.Name,
		}
		err := e.sender.CreateAndSend(ctx, msg)
		if errors.Is(err, apperrors.ErrRateLimited) {
			// Window exhausted: stop the batch, the rest stays Pending.
			e.logger.WithField("campaign", name).Info("Campaign batch paused by rate limit")
			break
		}
		if err != nil {
			failed++
			e.logger.WithFields(logrus.Fields{
				"campaign":  name,
				"recipient": recipient.Phone,
			}).WithError(err).Warn("Campaign send failed")
			if uerr := e.store.UpdateRecipient(ctx, recipient.ID, models.RecipientFailed, msg.ID); uerr != nil {
				e.logger.WithField("recipient", recipient.ID).WithError(uerr).Error("Failed to record recipient failure")
			}
			continue
		}
		sent++
		if uerr := e.store.UpdateRecipient(ctx, recipient.ID, models.RecipientSent, msg.ID); uerr != nil {
			e.logger.WithField("recipient", recipient.ID).WithError(uerr).Error("Failed to record recipient send")
		}
	}

	campaign.SentCount += sent
	campaign.FailedCount += failed

	remaining, err := e.store.CountPendingRecipients(ctx, name)
	if err != nil {
		return err
	}
	if remaining == 0 {
		campaign.Status = models.CampaignCompleted
	}

	e.metrics.Inc(metrics.CampaignBatches)
	return e.store.UpdateCampaignProgress(ctx, campaign)
}

// ProcessCampaigns is the periodic driver: due Scheduled campaigns start,
// then every Running campaign advances by one batch.
func (e *CampaignEngine) ProcessCampaigns(ctx context.Context, now time.Time) {
	due, err := e.store.ListDueScheduledCampaigns(ctx, now)
	if err != nil {
		e.logger.WithError(err).Error("Failed to list due campaigns")
	}
	for _, campaign := range due {
		if err := e.Start(ctx, campaign.Name); err != nil {
			e.logger.WithField("campaign", campaign.Name).WithError(err).Error("Failed to start scheduled campaign")
		}
	}

	running, err := e.store.ListCampaignsByStatus(ctx, models.CampaignRunning)
	if err != nil {
		e.logger.WithError(err).Error("Failed to list running campaigns")
		return
	}
	for _, campaign := range running {
		if err := e.ProcessBatch(ctx, campaign.Name); err != nil {
			e.logger.WithField("campaign", campaign.Name).WithError(err).Error("Campaign batch failed")
		}
	}
}
