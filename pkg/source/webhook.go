package source

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exhttp"

	"github.com/duskmoth/replybot/pkg/mention"
)

const defaultQueueSize = 64

// WebhookSource receives pushed mention deliveries over HTTP. Batches are
// queued in arrival order and drained by the orchestrator between cycles.
// The handler always returns success so the upstream does not redeliver the
// same event indefinitely.
type WebhookSource struct {
	queue chan []mention.Mention
	log   zerolog.Logger
}

func NewWebhookSource(log zerolog.Logger) *WebhookSource {
	return &WebhookSource{
		queue: make(chan []mention.Mention, defaultQueueSize),
		log:   log.With().Str("component", "webhook_source").Logger(),
	}
}

// ServeHTTP decodes a tweet-create-events envelope and enqueues the batch.
func (s *WebhookSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()
	log := s.log.With().Str("delivery_id", deliveryID).Logger()

	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		log.Warn().Err(err).Msg("Ignoring malformed webhook payload")
		exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	batch := env.mentions()
	if len(batch) > 0 {
		select {
		case s.queue <- batch:
			log.Debug().Int("count", len(batch)).Msg("Webhook batch queued")
		default:
			log.Warn().Int("count", len(batch)).Msg("Webhook queue full, dropping batch")
		}
	}
	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{"ok": true})
}

// Next blocks until a delivery arrives or the context is done.
func (s *WebhookSource) Next(ctx context.Context) ([]mention.Mention, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch := <-s.queue:
		return batch, nil
	}
}
