package service

import (
	"context"
	"errors"
	"fmt"

	apperrors "whatshub/internal/errors"
	"whatshub/internal/metrics"
	"whatshub/internal/models"
	"whatshub/internal/tracing"
	"whatshub/pkg/whatsapp"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SenderStore is the slice of the database the outbound path needs.
type SenderStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	SetExternalID(ctx context.Context, id, externalID string) error
	SetDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus) error
	GetAccount(ctx context.Context, name string) (*models.Account, error)
}

// RateLimiter gates sends per account. Acquire spends a slot atomically and
// returns ErrRateLimited when the window is exhausted.
type RateLimiter interface {
	Acquire(ctx context.Context, account string, limit int) error
}

// ProviderClient is the outbound provider surface the sender uses.
type ProviderClient interface {
	SendText(ctx context.Context, account *models.Account, to, body string) (string, error)
	SendTemplate(ctx context.Context, account *models.Account, to, template string) (string, error)
}

var _ ProviderClient = whatsapp.Client(nil)

// Sender drives the outbound send path: rate-limiter gate, provider call,
// external id capture. Both the campaign engine and the scheduler send
// through here.
type Sender struct {
	store   SenderStore
	client  ProviderClient
	limiter RateLimiter
	limit   int
	metrics *metrics.Registry
	logger  *logrus.Logger
}

func NewSender(store SenderStore, client ProviderClient, limiter RateLimiter, limit int, registry *metrics.Registry, logger *logrus.Logger) *Sender {
	return &Sender{
		store:   store,
		client:  client,
		limiter: limiter,
		limit:   limit,
		metrics: registry,
		logger:  logger,
	}
}

// Send performs a gated provider send for an already-persisted outgoing
// message. The rate-limit slot is claimed before the provider call, so a
// failed send still spends quota; that caps concurrent in-flight sends.
func (s *Sender) Send(ctx context.Context, msg *models.Message) error {
	ctx, span := tracing.StartSpan(ctx, "sender.Send", attribute.String("account", msg.Account))
	defer span.End()

	account, err := s.store.GetAccount(ctx, msg.Account)
	if err != nil {
		return fmt.Errorf("failed to resolve account: %w", err)
	}
	if account == nil {
		return fmt.Errorf("account not found: %s", msg.Account)
	}

	if err := s.limiter.Acquire(ctx, account.Name, s.limit); err != nil {
		s.metrics.Inc(metrics.RateLimitRejections)
		return err
	}

	var externalID string
	switch msg.ContentType {
	case models.ContentTypeTemplate:
		externalID, err = s.client.SendTemplate(ctx, account, msg.To, msg.Template)
	default:
		externalID, err = s.client.SendText(ctx, account, msg.To, msg.Body)
	}
	if err != nil {
		s.metrics.Inc(metrics.SendFailures)
		tracing.RecordError(span, err)
		return fmt.Errorf("provider send failed: %w", err)
	}

	if err := s.store.SetExternalID(ctx, msg.ID, externalID); err != nil {
		// The provider accepted the message; losing the id correlation is
		// logged but the send itself succeeded.
		s.logger.WithFields(logrus.Fields{
			"message":    msg.ID,
			"externalId": externalID,
		}).WithError(err).Error("Failed to record external message id")
	}
	msg.ExternalID = externalID

	s.metrics.Inc(metrics.MessagesSent)
	return nil
}

// CreateAndSend persists a new outgoing message and immediately sends it.
// Message creation triggering the send is the normal outbound path. A row
// whose send never went out is marked cancelled (rate limit, the caller
// retries with a fresh message) or failed, never left queued.
func (s *Sender) CreateAndSend(ctx context.Context, msg *models.Message) error {
	msg.Direction = models.DirectionOutgoing
	if msg.Status == "" {
		msg.Status = models.DeliveryStatusQueued
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return err
	}
	if err := s.Send(ctx, msg); err != nil {
		status := models.DeliveryStatusFailed
		if errors.Is(err, apperrors.ErrRateLimited) {
			status = models.DeliveryStatusCancelled
		}
		if uerr := s.store.SetDeliveryStatus(ctx, msg.ID, status); uerr != nil {
			s.logger.WithField("message", msg.ID).WithError(uerr).Error("Failed to mark unsent message")
		}
		msg.Status = status
		return err
	}
	return nil
}
