package database

// Account queries
const (
	upsertAccountQuery = `
		INSERT INTO accounts (name, phone_number_id, token, app_secret, status, api_base_url, api_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			phone_number_id = excluded.phone_number_id,
			token = excluded.token,
			app_secret = excluded.app_secret,
			status = excluded.status,
			api_base_url = excluded.api_base_url,
			api_version = excluded.api_version
	`

	selectAccountColumns = `name, phone_number_id, token, app_secret, status, api_base_url, api_version, created_at`
)

// Message queries
const (
	insertMessageQuery = `
		INSERT INTO messages (
			id, direction, message_id, reply_to_message_id, is_reply, profile_name,
			from_number, to_number, content_type, message, flow_response, attach,
			status, conversation_id, account, template, bulk_message_reference,
			reference_doctype, reference_name, is_scheduled, scheduled_time,
			scheduling_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectMessageColumns = `
		id, direction, message_id, reply_to_message_id, is_reply, profile_name,
		from_number, to_number, content_type, message, flow_response, attach,
		status, conversation_id, account, template, bulk_message_reference,
		reference_doctype, reference_name, is_scheduled, scheduled_time,
		scheduling_status, created_at, updated_at
	`

	updateStatusByExternalIDQuery = `
		UPDATE messages
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE message_id = ?
	`

	updateStatusAndConversationByExternalIDQuery = `
		UPDATE messages
		SET status = ?, conversation_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE message_id = ?
	`

	setDeliveryStatusQuery = `
		UPDATE messages
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	setExternalIDQuery = `
		UPDATE messages
		SET message_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	setAttachmentQuery = `
		UPDATE messages
		SET attach = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	selectDueScheduledQuery = `
		SELECT ` + selectMessageColumns + `
		FROM messages
		WHERE is_scheduled = 1
		  AND scheduled_time <= ?
		  AND scheduling_status = ?
		  AND status != ?
		ORDER BY scheduled_time
	`

	// Compare-and-set on scheduling_status; claims the row against a
	// concurrent cancellation or a second sweeper.
	casSchedulingStatusQuery = `
		UPDATE messages
		SET scheduling_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND scheduling_status = ?
	`

	cancelScheduledQuery = `
		UPDATE messages
		SET scheduling_status = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_scheduled = 1 AND scheduling_status = ?
	`
)

// Campaign queries
const (
	upsertCampaignQuery = `
		INSERT INTO campaigns (name, status, audience_type, target_tags, template,
			account, scheduled_time, total_recipients, sent_count, failed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			audience_type = excluded.audience_type,
			target_tags = excluded.target_tags,
			template = excluded.template,
			account = excluded.account,
			scheduled_time = excluded.scheduled_time,
			total_recipients = excluded.total_recipients,
			sent_count = excluded.sent_count,
			failed_count = excluded.failed_count
	`

	selectCampaignColumns = `name, status, audience_type, target_tags, template,
		account, scheduled_time, total_recipients, sent_count, failed_count, created_at`

	updateCampaignProgressQuery = `
		UPDATE campaigns
		SET status = ?, total_recipients = ?, sent_count = ?, failed_count = ?
		WHERE name = ?
	`

	insertRecipientQuery = `
		INSERT INTO campaign_recipients (campaign, contact_name, mobile_no, status, message_id, position)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	selectRecipientColumns = `id, campaign, contact_name, mobile_no, status, message_id, position`

	updateRecipientQuery = `
		UPDATE campaign_recipients
		SET status = ?, message_id = ?
		WHERE id = ?
	`
)

// Webhook log queries
const (
	insertWebhookLogQuery = `
		INSERT INTO webhook_logs (timestamp, request_data, headers, error)
		VALUES (?, ?, ?, ?)
	`

	selectWebhookLogQuery = `
		SELECT id, timestamp, request_data, headers, error
		FROM webhook_logs
		WHERE id = ?
	`
)
