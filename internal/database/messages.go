package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"whatshub/internal/models"

	"github.com/google/uuid"
)

// CreateMessage inserts a new Message, assigning an internal id when absent.
// A duplicate non-empty external id violates the per-provider-id uniqueness
// invariant and surfaces as ErrDuplicateExternalID.
func (d *Database) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now

	_, err := d.db.ExecContext(ctx, insertMessageQuery,
		msg.ID, msg.Direction, msg.ExternalID, msg.ReplyToExternal, msg.IsReply,
		msg.ProfileName, msg.From, msg.To, msg.ContentType, msg.Body,
		msg.FlowResponse, msg.AttachPath, msg.Status, msg.ConversationID,
		msg.Account, msg.Template, msg.CampaignRef, msg.ReferenceDoctype,
		msg.ReferenceName, msg.IsScheduled, msg.ScheduledTime,
		msg.SchedulingStatus, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateExternalID, msg.ExternalID)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ErrDuplicateExternalID marks an insert that would create a second Message
// for the same provider message id.
var ErrDuplicateExternalID = fmt.Errorf("message already exists for external id")

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *Database) scanMessage(scan func(dest ...interface{}) error) (*models.Message, error) {
	msg := &models.Message{}
	err := scan(
		&msg.ID, &msg.Direction, &msg.ExternalID, &msg.ReplyToExternal,
		&msg.IsReply, &msg.ProfileName, &msg.From, &msg.To, &msg.ContentType,
		&msg.Body, &msg.FlowResponse, &msg.AttachPath, &msg.Status,
		&msg.ConversationID, &msg.Account, &msg.Template, &msg.CampaignRef,
		&msg.ReferenceDoctype, &msg.ReferenceName, &msg.IsScheduled,
		&msg.ScheduledTime, &msg.SchedulingStatus, &msg.CreatedAt, &msg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return msg, nil
}

func (d *Database) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + selectMessageColumns + ` FROM messages WHERE id = ?`
	return d.scanMessage(d.db.QueryRowContext(ctx, query, id).Scan)
}

// GetMessageByExternalID returns nil, nil when no message carries that id.
func (d *Database) GetMessageByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	query := `SELECT ` + selectMessageColumns + ` FROM messages WHERE message_id = ?`
	return d.scanMessage(d.db.QueryRowContext(ctx, query, externalID).Scan)
}

// UpdateStatusByExternalID overwrites the delivery status (and conversation
// id when given) of the message carrying externalID. Returns false when no
// such message exists; callers treat that as a silent no-op.
func (d *Database) UpdateStatusByExternalID(ctx context.Context, externalID, status, conversationID string) (bool, error) {
	var res sql.Result
	var err error
	if conversationID != "" {
		res, err = d.db.ExecContext(ctx, updateStatusAndConversationByExternalIDQuery,
			status, conversationID, externalID)
	} else {
		res, err = d.db.ExecContext(ctx, updateStatusByExternalIDQuery, status, externalID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update message status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// SetDeliveryStatus overwrites the delivery status of a message by internal id.
func (d *Database) SetDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus) error {
	if _, err := d.db.ExecContext(ctx, setDeliveryStatusQuery, status, id); err != nil {
		return fmt.Errorf("failed to set delivery status: %w", err)
	}
	return nil
}

// SetExternalID records the provider-assigned id once a send is accepted.
func (d *Database) SetExternalID(ctx context.Context, id, externalID string) error {
	_, err := d.db.ExecContext(ctx, setExternalIDQuery, externalID, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateExternalID, externalID)
		}
		return fmt.Errorf("failed to set external id: %w", err)
	}
	return nil
}

func (d *Database) SetAttachment(ctx context.Context, id, path string) error {
	if _, err := d.db.ExecContext(ctx, setAttachmentQuery, path, id); err != nil {
		return fmt.Errorf("failed to set attachment: %w", err)
	}
	return nil
}

// ListDueScheduledMessages selects scheduled messages whose due time has
// passed and which are still pending and unsent.
func (d *Database) ListDueScheduledMessages(ctx context.Context, now time.Time) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, selectDueScheduledQuery,
		now, models.SchedulingPending, models.DeliveryStatusSent)
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// CompareAndSetSchedulingStatus transitions scheduling_status from one value
// to another atomically. Returns false when the row was not in the expected
// state, which callers use to lose races gracefully.
func (d *Database) CompareAndSetSchedulingStatus(ctx context.Context, id string, from, to models.SchedulingStatus) (bool, error) {
	res, err := d.db.ExecContext(ctx, casSchedulingStatusQuery, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update scheduling status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// CancelScheduledMessage moves a pending schedule to Cancelled, also marking
// the delivery status cancelled. Returns false when the message was not a
// pending scheduled message.
func (d *Database) CancelScheduledMessage(ctx context.Context, id string) (bool, error) {
	res, err := d.db.ExecContext(ctx, cancelScheduledQuery,
		models.SchedulingCancelled, models.DeliveryStatusCancelled, id, models.SchedulingPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel scheduled message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}
