package source

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/mention"
)

// Searcher is the platform operation the poll source needs.
type Searcher interface {
	SearchRecent(ctx context.Context, query, sinceID string) ([]mention.Mention, string, error)
}

// PollSource pulls mentions from the recent-search API, excluding reposts,
// advancing a since-id cursor after each fetch.
type PollSource struct {
	client Searcher
	query  string
	log    zerolog.Logger

	mu     sync.Mutex
	cursor string
}

// NewPollSource builds a poll source for the given bot handle. The initial
// cursor usually comes from the persisted tracking state.
func NewPollSource(client Searcher, handle, cursor string, log zerolog.Logger) *PollSource {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	return &PollSource{
		client: client,
		query:  fmt.Sprintf("@%s -is:retweet", handle),
		cursor: cursor,
		log:    log.With().Str("component", "poll_source").Logger(),
	}
}

func (s *PollSource) Next(ctx context.Context) ([]mention.Mention, error) {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	mentions, next, err := s.client.SearchRecent(ctx, s.query, cursor)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cursor = next
	s.mu.Unlock()

	s.log.Debug().Int("count", len(mentions)).Str("cursor", next).Msg("Poll fetch completed")
	return mentions, nil
}

// Cursor returns the current since-id cursor for persistence.
func (s *PollSource) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
