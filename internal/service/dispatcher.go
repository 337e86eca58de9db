package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"whatshub/internal/constants"
	"whatshub/internal/database"
	"whatshub/internal/events"
	"whatshub/internal/metrics"
	"whatshub/internal/models"
	"whatshub/internal/queue"
	"whatshub/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DispatcherStore is the slice of the database the dispatcher writes to.
type DispatcherStore interface {
	GetAccountByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Account, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	UpdateStatusByExternalID(ctx context.Context, externalID, status, conversationID string) (bool, error)
	UpdateTemplateStatusByProviderID(ctx context.Context, providerID int64, status string) error
}

// MediaFetcher pulls attachment bytes for a stored message in the background.
type MediaFetcher interface {
	Fetch(ctx context.Context, messageID, mediaID, kind string, account *models.Account)
}

// FlowPublisher pushes inbound flow submissions to live subscribers.
type FlowPublisher interface {
	PublishFlowResponse(ctx context.Context, event events.FlowResponseEvent) error
}

// Dispatcher turns accepted webhook payloads into message rows, status
// transitions, and template updates. It runs on queue workers, after the
// HTTP response has already gone out.
type Dispatcher struct {
	store   DispatcherStore
	media   MediaFetcher
	queue   *queue.Queue
	flows   FlowPublisher
	metrics *metrics.Registry
	logger  *logrus.Logger
}

func NewDispatcher(store DispatcherStore, media MediaFetcher, q *queue.Queue, flows FlowPublisher, registry *metrics.Registry, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		media:   media,
		queue:   q,
		flows:   flows,
		metrics: registry,
		logger:  logger,
	}
}

// ProcessPayload walks every entry/change in the envelope. Payloads that do
// not match the expected shape are ignored rather than failed: the provider
// retries on non-200 and we have already acked.
func (d *Dispatcher) ProcessPayload(ctx context.Context, raw []byte) error {
	ctx, span := tracing.StartSpan(ctx, "dispatcher.ProcessPayload")
	defer span.End()

	var payload models.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		d.logger.WithError(err).Warn("Discarding malformed webhook payload")
		return nil
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			d.processChange(ctx, change)
		}
	}
	return nil
}

func (d *Dispatcher) processChange(ctx context.Context, change models.WebhookChange) {
	value := change.Value

	if len(value.Messages) > 0 || len(value.Statuses) > 0 {
		account := d.resolveAccount(ctx, value.Metadata.PhoneNumberID)
		if account == nil {
			// Events for numbers we do not manage are dropped whole,
			// statuses included.
			d.logger.WithField("phoneNumberId", value.Metadata.PhoneNumberID).Warn("Discarding webhook event for unknown phone number")
			return
		}
		profile := profileName(value.Contacts)
		for i := range value.Messages {
			d.ingestMessage(ctx, &value.Messages[i], account, profile)
		}
		for _, status := range value.Statuses {
			d.applyStatus(ctx, status)
		}
		return
	}

	if change.Field == models.FieldTemplateStatusUpdate && value.MessageTemplateID != 0 {
		if err := d.store.UpdateTemplateStatusByProviderID(ctx, value.MessageTemplateID, value.Event); err != nil {
			d.logger.WithField("templateId", value.MessageTemplateID).WithError(err).Error("Failed to update template status")
		}
		return
	}
}

func (d *Dispatcher) resolveAccount(ctx context.Context, phoneNumberID string) *models.Account {
	if phoneNumberID == "" {
		return nil
	}
	account, err := d.store.GetAccountByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		d.logger.WithField("phoneNumberId", phoneNumberID).WithError(err).Error("Failed to resolve account for webhook")
		return nil
	}
	return account
}

func profileName(contacts []models.WebhookContact) string {
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}

// ingestMessage stores one inbound message. Ingestion is idempotent on the
// provider message id: a redelivered payload inserts nothing.
func (d *Dispatcher) ingestMessage(ctx context.Context, in *models.IncomingMessage, account *models.Account, profile string) {
	msg := &models.Message{
		Direction:   models.DirectionIncoming,
		ExternalID:  in.ID,
		ProfileName: profile,
		From:        in.From,
		To:          account.PhoneNumberID,
		Account:     account.Name,
		Status:      models.DeliveryStatusQueued,
	}
	// A forwarded marker carries a context too; only genuine replies count.
	if in.Context != nil && !in.Context.Forwarded {
		msg.IsReply = true
		msg.ReplyToExternal = in.Context.ID
	}

	d.classify(in, msg)

	if err := d.store.CreateMessage(ctx, msg); err != nil {
		if errors.Is(err, database.ErrDuplicateExternalID) {
			d.logger.WithField("externalId", in.ID).Debug("Skipping already-ingested message")
			return
		}
		d.logger.WithField("externalId", in.ID).WithError(err).Error("Failed to store inbound message")
		return
	}
	d.metrics.Inc(metrics.MessagesIngested)

	if msg.ContentType == models.ContentTypeFlow && msg.FlowResponse != "" {
		d.publishFlow(ctx, msg)
	}

	if media := in.Media(); media != nil {
		d.enqueueMediaFetch(msg.ID, media.ID, in.Type, account)
	}
}

// classify maps the provider's message variants onto our content model. The
// fallback branch keeps the raw variant so nothing is silently lost.
func (d *Dispatcher) classify(in *models.IncomingMessage, msg *models.Message) {
	switch in.Type {
	case "text":
		msg.ContentType = models.ContentTypeText
		if in.Text != nil {
			msg.Body = in.Text.Body
		}
	case "reaction":
		msg.ContentType = models.ContentTypeReaction
		if in.Reaction != nil {
			msg.Body = in.Reaction.Emoji
			msg.ReplyToExternal = in.Reaction.MessageID
			msg.IsReply = in.Reaction.MessageID != ""
		}
	case "interactive":
		d.classifyInteractive(in, msg)
	case "button":
		msg.ContentType = models.ContentTypeButton
		if in.Button != nil {
			msg.Body = in.Button.Text
		}
	case "image", "audio", "video", "document":
		msg.ContentType = models.ContentType(in.Type)
		if media := in.Media(); media != nil {
			msg.Body = media.Caption
		}
	default:
		// Unrecognized variant: store the raw content under its own type so
		// the record is still inspectable.
		msg.ContentType = models.ContentType(in.Type)
		if raw, ok := in.Raw[in.Type]; ok {
			msg.Body = string(raw)
		}
	}
}

func (d *Dispatcher) classifyInteractive(in *models.IncomingMessage, msg *models.Message) {
	msg.ContentType = models.ContentTypeInteractive
	if in.Interactive == nil {
		return
	}
	switch {
	case in.Interactive.ButtonReply != nil:
		msg.ContentType = models.ContentTypeButton
		msg.Body = in.Interactive.ButtonReply.ID
	case in.Interactive.ListReply != nil:
		msg.ContentType = models.ContentTypeButton
		msg.Body = in.Interactive.ListReply.ID
	case in.Interactive.NFMReply != nil:
		msg.ContentType = models.ContentTypeFlow
		fields := parseFlowFields(in.Interactive.NFMReply.ResponseJSON)
		if encoded, err := json.Marshal(fields); err == nil {
			msg.FlowResponse = string(encoded)
		}
		msg.Body = flowSummary(fields)
	}
}

// parseFlowFields decodes a flow submission's response_json. Anything that is
// not a JSON object counts as an empty submission.
func parseFlowFields(responseJSON string) map[string]interface{} {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(responseJSON), &fields); err != nil || fields == nil {
		return map[string]interface{}{}
	}
	return fields
}

// flowSummary renders submitted fields as "key: value" pairs for the readable
// message body, skipping the flow token and empty values. The structured JSON
// is kept alongside.
func flowSummary(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		if key == "flow_token" || isEmptyValue(fields[key]) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", key, fields[key]))
	}
	if len(parts) == 0 {
		return "Flow completed"
	}
	return strings.Join(parts, ", ")
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

func (d *Dispatcher) publishFlow(ctx context.Context, msg *models.Message) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(msg.FlowResponse), &fields); err != nil {
		return
	}
	// Subscribers correlate on the provider message id, not our row id.
	err := d.flows.PublishFlowResponse(ctx, events.FlowResponseEvent{
		Phone:        msg.From,
		MessageID:    msg.ExternalID,
		FlowResponse: fields,
		Account:      msg.Account,
	})
	if err != nil {
		d.logger.WithField("message", msg.ID).WithError(err).Warn("Failed to publish flow response event")
	}
}

func (d *Dispatcher) enqueueMediaFetch(messageID, mediaID, kind string, account *models.Account) {
	err := d.queue.Submit(constants.QueueShort, queue.JobFunc{
		Name: "media-fetch",
		Fn: func(jobCtx context.Context) error {
			d.media.Fetch(jobCtx, messageID, mediaID, kind, account)
			return nil
		},
	})
	if err != nil {
		d.logger.WithField("message", messageID).WithError(err).Error("Failed to enqueue media fetch")
	}
}

// applyStatus records a delivery status callback. Status callbacks for
// messages we never stored are counted and dropped.
func (d *Dispatcher) applyStatus(ctx context.Context, status models.MessageStatus) {
	conversationID := ""
	if status.Conversation != nil {
		conversationID = status.Conversation.ID
	}
	found, err := d.store.UpdateStatusByExternalID(ctx, status.ID, status.Status, conversationID)
	if err != nil {
		d.logger.WithField("externalId", status.ID).WithError(err).Error("Failed to apply status update")
		return
	}
	if !found {
		d.metrics.Inc(metrics.StatusUpdatesUnmatched)
		d.logger.WithFields(logrus.Fields{
			"externalId": status.ID,
			"status":     status.Status,
		}).Debug("Status update for unknown message")
		return
	}
	d.metrics.Inc(metrics.StatusUpdatesApplied)
}
