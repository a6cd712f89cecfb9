// Package notify delivers giveaway change events to configured webhook
// targets. Delivery is best-effort: failures are logged and never surfaced
// to the broadcast path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/runah1996/api.runah.pt/internal/cache"
	"github.com/runah1996/api.runah.pt/internal/hub"
)

// Target is one webhook destination.
type Target struct {
	// Type is one of: slack | http.
	Type string

	// URL is the resolved delivery URL.
	URL string
}

// Notifier subscribes to the hub and posts each change event to every target.
type Notifier struct {
	targets []Target
	client  *http.Client
}

// New creates a Notifier for the given targets.
func New(targets []Target) *Notifier {
	return &Notifier{
		targets: targets,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Run subscribes to h and delivers events until ctx is cancelled or the
// subscription is closed by the hub.
func (n *Notifier) Run(ctx context.Context, h *hub.Hub) {
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	log.Info().Int("targets", len(n.targets)).Msg("notify: webhook delivery started")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			n.deliver(ev)
		}
	}
}

// deliver posts ev to all targets. Errors are logged but do not affect the
// caller.
func (n *Notifier) deliver(ev cache.Event) {
	for _, t := range n.targets {
		if t.URL == "" {
			continue
		}

		var err error
		switch t.Type {
		case "slack":
			err = n.sendSlack(t.URL, ev)
		case "http":
			err = n.sendHTTP(t.URL, ev)
		default:
			log.Warn().Str("type", t.Type).Msg("notify: unknown webhook type, skipping")
			continue
		}

		if err != nil {
			log.Error().Err(err).
				Str("type", t.Type).
				Int64("version", ev.Snapshot.Version).
				Msg("notify: webhook delivery failed")
		} else {
			log.Debug().
				Str("type", t.Type).
				Int64("version", ev.Snapshot.Version).
				Str("cause", string(ev.Cause)).
				Msg("notify: webhook delivered")
		}
	}
}

func (n *Notifier) sendSlack(url string, ev cache.Event) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*Giveaway updated*: version %d (%s)", ev.Snapshot.Version, ev.Cause),
	})
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, ev cache.Event) error {
	body, _ := json.Marshal(map[string]interface{}{
		"event":     "giveaway_update",
		"key":       string(ev.Key),
		"cause":     string(ev.Cause),
		"version":   ev.Snapshot.Version,
		"data":      json.RawMessage(ev.Snapshot.Payload),
		"timestamp": ev.Snapshot.FetchedAt.UTC().Format(time.RFC3339),
	})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
