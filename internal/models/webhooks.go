package models

import "encoding/json"

// Webhook change fields dispatched on when the messages array is empty.
const (
	FieldMessages             = "messages"
	FieldTemplateStatusUpdate = "message_template_status_update"
)

// WebhookPayload is the provider's event envelope. Every field is optional on
// the wire; absence means "nothing to do".
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Contacts         []WebhookContact  `json:"contacts"`
	Messages         []IncomingMessage `json:"messages"`
	Statuses         []MessageStatus   `json:"statuses"`
	// Template status update fields
	Event             string `json:"event"`
	MessageTemplateID int64  `json:"message_template_id"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// MessageContext is present when a message replies to (or forwards) another.
type MessageContext struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Forwarded bool   `json:"forwarded"`
}

// MediaContent is the provider's descriptor for binary attachments. The
// actual bytes are fetched later by the media pipeline.
type MediaContent struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption"`
}

type ReactionContent struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type InteractiveContent struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply"`
	ListReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"list_reply"`
	NFMReply *struct {
		Name         string `json:"name"`
		Body         string `json:"body"`
		ResponseJSON string `json:"response_json"`
	} `json:"nfm_reply"`
}

type TextContent struct {
	Body string `json:"body"`
}

type ButtonContent struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// IncomingMessage is one element of a webhook messages array. Known content
// kinds decode into typed fields; Raw keeps every top-level key so the
// dispatcher's fallback branch can store unrecognized variants verbatim.
type IncomingMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Context     *MessageContext     `json:"context"`
	Text        *TextContent        `json:"text"`
	Reaction    *ReactionContent    `json:"reaction"`
	Interactive *InteractiveContent `json:"interactive"`
	Button      *ButtonContent      `json:"button"`
	Image       *MediaContent       `json:"image"`
	Audio       *MediaContent       `json:"audio"`
	Video       *MediaContent       `json:"video"`
	Document    *MediaContent       `json:"document"`

	Raw map[string]json.RawMessage `json:"-"`
}

func (m *IncomingMessage) UnmarshalJSON(data []byte) error {
	type alias IncomingMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = IncomingMessage(a)
	// Tolerate failure here: Raw is best-effort fallback material.
	_ = json.Unmarshal(data, &m.Raw)
	return nil
}

// Media returns the media descriptor matching the message type, if any.
func (m *IncomingMessage) Media() *MediaContent {
	switch m.Type {
	case "image":
		return m.Image
	case "audio":
		return m.Audio
	case "video":
		return m.Video
	case "document":
		return m.Document
	}
	return nil
}

// MessageStatus is one element of a status callback's statuses array.
type MessageStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	RecipientID  string `json:"recipient_id"`
	Conversation *struct {
		ID string `json:"id"`
	} `json:"conversation"`
}
