package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"whatshub/internal/models"
)

func (d *Database) SaveCampaign(ctx context.Context, c *models.Campaign) error {
	tags, err := json.Marshal(c.TargetTags)
	if err != nil {
		return fmt.Errorf("failed to marshal target tags: %w", err)
	}

	_, err = d.db.ExecContext(ctx, upsertCampaignQuery,
		c.Name, c.Status, c.AudienceType, string(tags), c.Template, c.Account,
		c.ScheduledTime, c.TotalRecipients, c.SentCount, c.FailedCount)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	return nil
}

func (d *Database) scanCampaign(scan func(dest ...interface{}) error) (*models.Campaign, error) {
	c := &models.Campaign{}
	var tags string
	err := scan(&c.Name, &c.Status, &c.AudienceType, &tags, &c.Template,
		&c.Account, &c.ScheduledTime, &c.TotalRecipients, &c.SentCount,
		&c.FailedCount, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan campaign: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &c.TargetTags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target tags: %w", err)
	}
	return c, nil
}

func (d *Database) GetCampaign(ctx context.Context, name string) (*models.Campaign, error) {
	query := `SELECT ` + selectCampaignColumns + ` FROM campaigns WHERE name = ?`
	return d.scanCampaign(d.db.QueryRowContext(ctx, query, name).Scan)
}

func (d *Database) listCampaigns(ctx context.Context, query string, args ...interface{}) ([]models.Campaign, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		c, err := d.scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (d *Database) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	query := `SELECT ` + selectCampaignColumns + ` FROM campaigns WHERE status = ? ORDER BY created_at`
	return d.listCampaigns(ctx, query, status)
}

// ListDueScheduledCampaigns returns Scheduled campaigns whose start time has
// passed.
func (d *Database) ListDueScheduledCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	query := `SELECT ` + selectCampaignColumns + `
		FROM campaigns
		WHERE status = ? AND scheduled_time IS NOT NULL AND scheduled_time <= ?
		ORDER BY scheduled_time`
	return d.listCampaigns(ctx, query, models.CampaignScheduled, now)
}

// UpdateCampaignProgress flushes status and counters once per processed
// batch.
func (d *Database) UpdateCampaignProgress(ctx context.Context, c *models.Campaign) error {
	_, err := d.db.ExecContext(ctx, updateCampaignProgressQuery,
		c.Status, c.TotalRecipients, c.SentCount, c.FailedCount, c.Name)
	if err != nil {
		return fmt.Errorf("failed to update campaign progress: %w", err)
	}
	return nil
}

// ReplaceRecipients clears and rebuilds the recipient list wholesale, in a
// single transaction. Population is never an incremental merge.
func (d *Database) ReplaceRecipients(ctx context.Context, campaign string, recipients []models.Recipient) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_recipients WHERE campaign = ?`, campaign); err != nil {
		return fmt.Errorf("failed to clear recipients: %w", err)
	}

	for i, r := range recipients {
		if _, err := tx.ExecContext(ctx, insertRecipientQuery,
			campaign, r.ContactName, r.Phone, r.Status, r.MessageID, i); err != nil {
			return fmt.Errorf("failed to insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recipients: %w", err)
	}
	return nil
}

func (d *Database) listRecipients(ctx context.Context, query string, args ...interface{}) ([]models.Recipient, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.ID, &r.Campaign, &r.ContactName, &r.Phone,
			&r.Status, &r.MessageID, &r.Position); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

func (d *Database) ListRecipients(ctx context.Context, campaign string) ([]models.Recipient, error) {
	query := `SELECT ` + selectRecipientColumns + `
		FROM campaign_recipients WHERE campaign = ? ORDER BY position`
	return d.listRecipients(ctx, query, campaign)
}

// ListPendingRecipients returns up to limit pending recipients in list order.
// limit <= 0 means no limit.
func (d *Database) ListPendingRecipients(ctx context.Context, campaign string, limit int) ([]models.Recipient, error) {
	query := `SELECT ` + selectRecipientColumns + `
		FROM campaign_recipients WHERE campaign = ? AND status = ? ORDER BY position`
	if limit > 0 {
		return d.listRecipients(ctx, query+` LIMIT ?`, campaign, models.RecipientPending, limit)
	}
	return d.listRecipients(ctx, query, campaign, models.RecipientPending)
}

func (d *Database) CountPendingRecipients(ctx context.Context, campaign string) (int, error) {
	query := `SELECT COUNT(*) FROM campaign_recipients WHERE campaign = ? AND status = ?`
	var n int
	if err := d.db.QueryRowContext(ctx, query, campaign, models.RecipientPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending recipients: %w", err)
	}
	return n, nil
}

func (d *Database) UpdateRecipient(ctx context.Context, id int64, status models.RecipientStatus, messageID string) error {
	if _, err := d.db.ExecContext(ctx, updateRecipientQuery, status, messageID, id); err != nil {
		return fmt.Errorf("failed to update recipient: %w", err)
	}
	return nil
}
