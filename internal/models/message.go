package models

import (
	"time"
)

// MessageDirection distinguishes inbound provider messages from our own sends.
// Immutable after creation.
type MessageDirection string

const (
	DirectionIncoming MessageDirection = "Incoming"
	DirectionOutgoing MessageDirection = "Outgoing"
)

// DeliveryStatus is the provider-reported lifecycle of an outgoing message.
// Transitions are last-write-wins: the provider may report out of order and
// we store whatever arrives last.
type DeliveryStatus string

const (
	DeliveryStatusQueued    DeliveryStatus = "queued"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// ContentType classifies the message payload.
type ContentType string

const (
	ContentTypeText        ContentType = "text"
	ContentTypeReaction    ContentType = "reaction"
	ContentTypeButton      ContentType = "button"
	ContentTypeInteractive ContentType = "interactive"
	ContentTypeFlow        ContentType = "flow"
	ContentTypeImage       ContentType = "image"
	ContentTypeAudio       ContentType = "audio"
	ContentTypeVideo       ContentType = "video"
	ContentTypeDocument    ContentType = "document"
	ContentTypeTemplate    ContentType = "template"
	ContentTypeStatus      ContentType = "status"
)

// SchedulingStatus tracks a scheduled outgoing message through the sweep loop.
type SchedulingStatus string

const (
	SchedulingPending   SchedulingStatus = "Pending"
	SchedulingSent      SchedulingStatus = "Sent"
	SchedulingCancelled SchedulingStatus = "Cancelled"
)

// Message is the central entity: one row per inbound or outbound message.
// ExternalID is the provider-assigned message id; at most one Message exists
// per non-empty ExternalID.
type Message struct {
	ID               string           `db:"id"`
	Direction        MessageDirection `db:"direction"`
	ExternalID       string           `db:"message_id"`
	ReplyToExternal  string           `db:"reply_to_message_id"`
	IsReply          bool             `db:"is_reply"`
	ProfileName      string           `db:"profile_name"`
	From             string           `db:"from_number"`
	To               string           `db:"to_number"`
	ContentType      ContentType      `db:"content_type"`
	Body             string           `db:"message"`
	FlowResponse     string           `db:"flow_response"`
	AttachPath       *string          `db:"attach"`
	Status           DeliveryStatus   `db:"status"`
	ConversationID   string           `db:"conversation_id"`
	Account          string           `db:"account"`
	Template         string           `db:"template"`
	CampaignRef      string           `db:"bulk_message_reference"`
	ReferenceDoctype string           `db:"reference_doctype"`
	ReferenceName    string           `db:"reference_name"`
	IsScheduled      bool             `db:"is_scheduled"`
	ScheduledTime    *time.Time       `db:"scheduled_time"`
	SchedulingStatus SchedulingStatus `db:"scheduling_status"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}
