package models

import "time"

// CampaignStatus: Draft -> Scheduled -> Running -> Completed. Running is also
// reachable directly from Draft on manual start.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "Draft"
	CampaignScheduled CampaignStatus = "Scheduled"
	CampaignRunning   CampaignStatus = "Running"
	CampaignCompleted CampaignStatus = "Completed"
)

// AudienceType selects how recipients are populated.
type AudienceType string

const (
	AudienceAllContacts    AudienceType = "All Contacts"
	AudienceTaggedContacts AudienceType = "Tagged Contacts"
)

// RecipientStatus tracks each campaign target independently of the Message it
// eventually produces.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "Pending"
	RecipientSent    RecipientStatus = "Sent"
	RecipientFailed  RecipientStatus = "Failed"
)

// Campaign is a broadcast job. Counters are best-effort tallies flushed once
// per batch, not a transactional ledger.
type Campaign struct {
	Name            string         `db:"name"`
	Status          CampaignStatus `db:"status"`
	AudienceType    AudienceType   `db:"audience_type"`
	TargetTags      []string       `db:"target_tags"`
	Template        string         `db:"template"`
	Account         string         `db:"account"`
	ScheduledTime   *time.Time     `db:"scheduled_time"`
	TotalRecipients int            `db:"total_recipients"`
	SentCount       int            `db:"sent_count"`
	FailedCount     int            `db:"failed_count"`
	CreatedAt       time.Time      `db:"created_at"`
}

// Recipient is one ordered campaign target.
type Recipient struct {
	ID          int64           `db:"id"`
	Campaign    string          `db:"campaign"`
	ContactName string          `db:"contact_name"`
	Phone       string          `db:"mobile_no"`
	Status      RecipientStatus `db:"status"`
	MessageID   string          `db:"message_id"`
	Position    int             `db:"position"`
}
