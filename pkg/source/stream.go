package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/mention"
)

const (
	streamReconnectMin = time.Second
	streamReconnectMax = time.Minute
)

// StreamSource consumes a websocket firehose carrying the same envelope as
// the webhook transport. It reconnects with exponential backoff.
type StreamSource struct {
	url     string
	log     zerolog.Logger
	conn    *websocket.Conn
	backoff time.Duration
}

func NewStreamSource(url string, log zerolog.Logger) *StreamSource {
	return &StreamSource{
		url:     url,
		log:     log.With().Str("component", "stream_source").Logger(),
		backoff: streamReconnectMin,
	}
}

// Next reads messages until one yields mentions, reconnecting as needed.
func (s *StreamSource) Next(ctx context.Context) ([]mention.Mention, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.conn == nil {
			if err := s.connect(ctx); err != nil {
				s.log.Warn().Err(err).Dur("backoff", s.backoff).Msg("Stream connect failed")
				if !s.wait(ctx) {
					return nil, ctx.Err()
				}
				continue
			}
		}

		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.drop()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn().Err(err).Msg("Stream read failed, reconnecting")
			if !s.wait(ctx) {
				return nil, ctx.Err()
			}
			continue
		}
		s.backoff = streamReconnectMin

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debug().Err(err).Msg("Ignoring malformed stream frame")
			continue
		}
		if batch := env.mentions(); len(batch) > 0 {
			return batch, nil
		}
	}
}

func (s *StreamSource) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	s.log.Info().Str("url", s.url).Msg("Stream connected")
	return nil
}

func (s *StreamSource) drop() {
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
		s.conn = nil
	}
}

func (s *StreamSource) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.backoff)
	defer timer.Stop()
	s.backoff *= 2
	if s.backoff > streamReconnectMax {
		s.backoff = streamReconnectMax
	}
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close tears down the stream connection.
func (s *StreamSource) Close() {
	s.drop()
}
