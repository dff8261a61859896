package platform

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/library-portal/internal/metrics"
)

// Change is one push notification from the provider. It carries no row data;
// subscribers re-read the relation in full on every event.
type Change struct {
	Relation   string    `json:"relation"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	realtimePath   = "/realtime/v1/changes"
	reconnectDelay = 2 * time.Second
	changeBuffer   = 16
)

// SubscribeChanges opens one change-notification channel for a relation.
// Events arrive until ctx ends, at which point the returned channel closes.
// A dropped stream is re-dialed after a short delay; the subscriber only ever
// sees a gap, never an error. Events are dropped rather than queued when the
// subscriber falls behind, which is safe because every event means the same
// thing: reload.
func (c *Client) SubscribeChanges(ctx context.Context, accessToken, relation string) (<-chan Change, error) {
	if err := validateRelation(relation); err != nil {
		return nil, err
	}

	ch := make(chan Change, changeBuffer)
	channelID := uuid.NewString()
	logger := c.logger.With("relation", relation, "channel_id", channelID)

	go func() {
		defer close(ch)
		for {
			err := c.streamChanges(ctx, accessToken, relation, ch)
			if ctx.Err() != nil {
				return
			}
			logger.WarnContext(ctx, "realtime stream dropped, reconnecting", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return ch, nil
}

// streamChanges holds one SSE connection open and forwards its events.
func (c *Client) streamChanges(ctx context.Context, accessToken, relation string, ch chan<- Change) error {
	query := url.Values{"relation": {relation}}
	endpoint := c.baseURL + realtimePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	// The streaming connection must outlive the client's request timeout.
	resp, err := c.streamTransport().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 256<<10)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue // comments, event names, heartbeats, blank separators
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		change := Change{Relation: relation, OccurredAt: time.Now().UTC()}
		_ = json.Unmarshal([]byte(payload), &change)
		metrics.ObserveRealtimeEvent(relation)

		select {
		case ch <- change:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Subscriber busy; the pending reload covers this event too.
		}
	}
	return scanner.Err()
}

func (c *Client) streamTransport() *http.Client {
	stream := *c.httpc
	stream.Timeout = 0
	return &stream
}
