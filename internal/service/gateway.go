package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"whatshub/internal/constants"
	apperrors "whatshub/internal/errors"
	"whatshub/internal/metrics"
	"whatshub/internal/models"
	"whatshub/internal/queue"

	"github.com/sirupsen/logrus"
)

// GatewayStore is the slice of the database the webhook gateway needs.
type GatewayStore interface {
	ListActiveAccounts(ctx context.Context) ([]models.Account, error)
	SaveWebhookLog(ctx context.Context, log *models.WebhookLog) (int64, error)
	GetWebhookLog(ctx context.Context, id int64) (*models.WebhookLog, error)
}

// Gateway is the inbound webhook edge: signature verification, audit
// logging, and fast handoff to the dispatcher. The HTTP handler returns as
// soon as the payload is persisted and enqueued.
type Gateway struct {
	store      GatewayStore
	queue      *queue.Queue
	dispatcher *Dispatcher
	metrics    *metrics.Registry
	logger     *logrus.Logger
}

func NewGateway(store GatewayStore, q *queue.Queue, dispatcher *Dispatcher, registry *metrics.Registry, logger *logrus.Logger) *Gateway {
	return &Gateway{
		store:      store,
		queue:      q,
		dispatcher: dispatcher,
		metrics:    registry,
		logger:     logger,
	}
}

// VerifySignature checks an X-Hub-Signature-256 header against one secret.
// The header carries "sha256=<hex>" over the raw request body.
func VerifySignature(body []byte, header, secret string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// verifyAgainstAccounts accepts the payload if any active account's app
// secret produces a matching signature. Accounts without a secret configured
// do not participate. Verification only applies to signed requests: a payload
// carrying no signature header passes through unverified.
func (g *Gateway) verifyAgainstAccounts(ctx context.Context, body []byte, header string) (bool, error) {
	accounts, err := g.store.ListActiveAccounts(ctx)
	if err != nil {
		return false, err
	}

	var secrets []string
	for _, acc := range accounts {
		if acc.AppSecret != "" {
			secrets = append(secrets, acc.AppSecret)
		}
	}
	if len(secrets) == 0 {
		return true, nil
	}
	if header == "" {
		g.logger.Warn("Accepting webhook without signature header")
		return true, nil
	}
	for _, secret := range secrets {
		if VerifySignature(body, header, secret) {
			return true, nil
		}
	}
	return false, nil
}

// HandlePayload is the POST path. It verifies, audit-logs, enqueues
// background processing, and returns the status code and body to write.
func (g *Gateway) HandlePayload(ctx context.Context, body []byte, headers http.Header) (int, string) {
	g.metrics.Inc(metrics.WebhookReceived)

	ok, err := g.verifyAgainstAccounts(ctx, body, headers.Get(constants.SignatureHeader))
	if err != nil {
		g.logger.WithError(err).Error("Failed to load accounts for signature verification")
		return http.StatusInternalServerError, "Internal Server Error"
	}
	if !ok {
		g.metrics.Inc(metrics.WebhookRejected)
		g.audit(ctx, body, headers, "signature verification failed")
		g.logger.Warn("Rejected webhook with invalid signature")
		return http.StatusForbidden, "Forbidden"
	}

	logID := g.audit(ctx, body, headers, "")

	payload := make([]byte, len(body))
	copy(payload, body)
	err = g.queue.Submit(constants.QueueLong, queue.JobFunc{
		Name: "webhook-dispatch",
		Fn: func(jobCtx context.Context) error {
			return g.dispatcher.ProcessPayload(jobCtx, payload)
		},
	})
	if err != nil {
		// The payload is already persisted in the audit log; it can be
		// replayed once the queue drains.
		g.logger.WithField("webhookLog", logID).WithError(err).Error("Failed to enqueue webhook processing")
	}

	return http.StatusOK, "OK"
}

// Replay re-runs dispatch for a previously logged payload. Processing is
// idempotent for message ingestion, so replaying an accepted payload is safe.
func (g *Gateway) Replay(ctx context.Context, logID int64) error {
	entry, err := g.store.GetWebhookLog(ctx, logID)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.New(apperrors.ErrCodeNotFound, "webhook log not found").WithContext("id", logID)
	}
	return g.dispatcher.ProcessPayload(ctx, []byte(entry.Payload))
}

func (g *Gateway) audit(ctx context.Context, body []byte, headers http.Header, errMsg string) int64 {
	headerJSON, _ := json.Marshal(flattenHeaders(headers))
	id, err := g.store.SaveWebhookLog(ctx, &models.WebhookLog{
		Timestamp: time.Now().UTC(),
		Payload:   string(body),
		Headers:   string(headerJSON),
		Error:     errMsg,
	})
	if err != nil {
		g.logger.WithError(err).Error("Failed to write webhook audit log")
	}
	return id
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}
	return flat
}
