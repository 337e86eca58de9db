package models

import "time"

// AccountStatus gates signature verification and send eligibility.
type AccountStatus string

const (
	AccountActive   AccountStatus = "Active"
	AccountInactive AccountStatus = "Inactive"
)

// Account is a provisioned messaging-platform identity. Token and AppSecret
// are stored encrypted at rest; the store decrypts on read.
type Account struct {
	Name          string        `db:"name"`
	PhoneNumberID string        `db:"phone_number_id"`
	Token         string        `db:"token"`
	AppSecret     string        `db:"app_secret"`
	Status        AccountStatus `db:"status"`
	APIBaseURL    string        `db:"api_base_url"`
	APIVersion    string        `db:"api_version"`
	CreatedAt     time.Time     `db:"created_at"`
}

// Contact is an addressable recipient, tagged for campaign targeting.
type Contact struct {
	Name      string    `db:"name"`
	Phone     string    `db:"phone"`
	Tags      []string  `db:"tags"`
	CreatedAt time.Time `db:"created_at"`
}

// Template mirrors a provider-side message template; its status is driven by
// the message_template_status_update webhook branch.
type Template struct {
	Name               string    `db:"name"`
	ProviderTemplateID int64     `db:"provider_template_id"`
	Status             string    `db:"status"`
	Account            string    `db:"account"`
	CreatedAt          time.Time `db:"created_at"`
}

// WebhookLog is the durable audit record written for every inbound webhook
// POST, and for every rejected signature. Replay reads from here.
type WebhookLog struct {
	ID        int64     `db:"id"`
	Timestamp time.Time `db:"timestamp"`
	Payload   string    `db:"request_data"`
	Headers   string    `db:"headers"`
	Error     string    `db:"error"`
}
