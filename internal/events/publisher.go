package events

import (
	"context"
	"encoding/json"
	"fmt"

	"whatshub/internal/constants"

	"github.com/redis/go-redis/v9"
)

// FlowResponseEvent is pushed to live subscribers when an inbound flow
// (form) submission arrives, so UI consumers can react in real time.
type FlowResponseEvent struct {
	Phone        string                 `json:"phone"`
	MessageID    string                 `json:"message_id"`
	FlowResponse map[string]interface{} `json:"flow_response"`
	Account      string                 `json:"account"`
}

// Publisher fans events out over redis pub/sub.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishFlowResponse is fire-and-forget from the caller's perspective;
// subscribers that are not listening simply miss the event.
func (p *Publisher) PublishFlowResponse(ctx context.Context, event FlowResponseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal flow response event: %w", err)
	}
	if err := p.rdb.Publish(ctx, constants.FlowResponseChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish flow response event: %w", err)
	}
	return nil
}
