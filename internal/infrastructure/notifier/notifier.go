package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
)

type eventPayload struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	PoolID     string    `json:"pool_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HTTPEventPublisher posts settlement events to the platform service. It is
// used when no Kafka brokers are configured.
type HTTPEventPublisher struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPEventPublisher(url, token string, timeout time.Duration) *HTTPEventPublisher {
	return &HTTPEventPublisher{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *HTTPEventPublisher) PublishSettlementEvent(ctx context.Context, event domain.SettlementEvent) error {
	body, err := json.Marshal(eventPayload{
		EntityType: string(event.EntityType),
		EntityID:   event.EntityID,
		PoolID:     event.PoolID,
		Status:     event.NewStatus,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("event delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
