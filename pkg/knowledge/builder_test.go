package knowledge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/mention"
	"github.com/duskmoth/replybot/pkg/platform"
	"github.com/duskmoth/replybot/pkg/research"
)

type fakeThreads struct {
	messages []platform.ThreadMessage
	err      error
}

func (f *fakeThreads) ConversationMessages(ctx context.Context, conversationID string, limit int) ([]platform.ThreadMessage, error) {
	return f.messages, f.err
}

type fakeSearcher struct {
	responses map[string]*Response
	err       error
	calls     int
}

func (f *fakeSearcher) Search(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[req.Query]; ok {
		return resp, nil
	}
	return &Response{Query: req.Query, NoResults: true}, nil
}

func testMention() mention.Mention {
	return mention.Mention{
		ID:             "t1",
		AuthorID:       "a1",
		AuthorHandle:   "alice",
		ConversationID: "c1",
		Text:           "@bot thoughts on X",
	}
}

func newTestBuilder(threads ThreadFetcher, searcher Searcher) *Builder {
	b := NewBuilder(threads, searcher, nil, nil, nil, Config{LookupDelayMs: 1}, zerolog.Nop())
	b.sleep = func(ctx context.Context, d time.Duration) {}
	return b
}

func TestBuildFullPipeline(t *testing.T) {
	threads := &fakeThreads{messages: []platform.ThreadMessage{
		{ID: "m1", Text: "Announcing a partnership between @solana and BigCo", CreatedAt: time.Now()},
		{ID: "m2", Text: "@bot thoughts on X", CreatedAt: time.Now().Add(time.Minute)},
	}}
	searcher := &fakeSearcher{responses: map[string]*Response{
		"@solana": {Results: []Result{
			{Title: "Solana adoption surges", Description: "Network activity hits record levels"},
		}},
	}}

	k := newTestBuilder(threads, searcher).Build(context.Background(), testMention())
	if k.Degraded {
		t.Fatalf("pipeline should not degrade")
	}
	if k.RootPurpose != PurposePartnership {
		t.Fatalf("root purpose = %s, want partnership", k.RootPurpose)
	}
	if !k.HasTopics() {
		t.Fatalf("expected researched topics")
	}
	if k.Topics[0].Topic.Name != "solana" {
		t.Fatalf("expected solana topic first, got %+v", k.Topics[0].Topic)
	}
	if k.Topics[0].Snippets[0].Sentiment != SentimentBullish {
		t.Fatalf("expected bullish snippet, got %s", k.Topics[0].Snippets[0].Sentiment)
	}
}

func TestBuildDegradesWhenThreadFails(t *testing.T) {
	threads := &fakeThreads{err: errors.New("upstream down")}
	k := newTestBuilder(threads, &fakeSearcher{}).Build(context.Background(), testMention())
	if !k.Degraded {
		t.Fatalf("expected degraded knowledge")
	}
	if k.Summary != "@bot thoughts on X" {
		t.Fatalf("degraded summary must be the raw mention text, got %q", k.Summary)
	}
}

func TestBuildSurvivesEmptyResearch(t *testing.T) {
	threads := &fakeThreads{messages: []platform.ThreadMessage{
		{ID: "m1", Text: "Announcing something about @solana", CreatedAt: time.Now()},
	}}
	searcher := &fakeSearcher{} // every lookup returns zero results

	k := newTestBuilder(threads, searcher).Build(context.Background(), testMention())
	if k.Degraded {
		t.Fatalf("empty research must not degrade the thread summary")
	}
	if k.HasTopics() {
		t.Fatalf("no snippets means no topic research entries")
	}
	if k.Summary == "" {
		t.Fatalf("thread summary must survive")
	}
}

func TestLookupDelayOnlyBetweenExternalSearches(t *testing.T) {
	threads := &fakeThreads{messages: []platform.ThreadMessage{
		{ID: "m1", Text: "big news from @solana and @jito", CreatedAt: time.Now()},
	}}
	searcher := &fakeSearcher{responses: map[string]*Response{
		"@solana": {Results: []Result{{Title: "a", Description: "a"}}},
		"@jito":   {Results: []Result{{Title: "b", Description: "b"}}},
	}}

	b := NewBuilder(threads, searcher, nil, nil, nil, Config{LookupDelayMs: 1}, zerolog.Nop())
	sleeps := 0
	b.sleep = func(ctx context.Context, d time.Duration) { sleeps++ }

	b.Build(context.Background(), testMention())
	if searcher.calls != 2 {
		t.Fatalf("expected 2 external searches, got %d", searcher.calls)
	}
	if sleeps != 1 {
		t.Fatalf("two external searches pay exactly one inter-lookup delay, got %d", sleeps)
	}
}

func TestLookupDelaySkippedOnCacheHits(t *testing.T) {
	cache, err := research.OpenCache(filepath.Join(t.TempDir(), "research.db"), 900, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	ctx := context.Background()
	for _, q := range []string{"@solana", "@jito"} {
		if err := cache.Put(ctx, q, &Response{Query: q, Results: []Result{{Title: "cached", Description: "cached"}}}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	threads := &fakeThreads{messages: []platform.ThreadMessage{
		{ID: "m1", Text: "big news from @solana and @jito", CreatedAt: time.Now()},
	}}
	searcher := &fakeSearcher{}

	b := NewBuilder(threads, searcher, cache, nil, nil, Config{LookupDelayMs: 1}, zerolog.Nop())
	sleeps := 0
	b.sleep = func(ctx context.Context, d time.Duration) { sleeps++ }

	k := b.Build(ctx, testMention())
	if searcher.calls != 0 {
		t.Fatalf("cached topics must not reach the searcher, got %d calls", searcher.calls)
	}
	if sleeps != 0 {
		t.Fatalf("cache hits must not pay the rate-limit delay, got %d sleeps", sleeps)
	}
	if len(k.Topics) != 2 {
		t.Fatalf("expected both topics researched from cache, got %d", len(k.Topics))
	}
}

func TestBuildSurvivesSearchErrors(t *testing.T) {
	threads := &fakeThreads{messages: []platform.ThreadMessage{
		{ID: "m1", Text: "big news from @solana and @jito", CreatedAt: time.Now()},
	}}
	searcher := &fakeSearcher{err: errors.New("search down")}

	k := newTestBuilder(threads, searcher).Build(context.Background(), testMention())
	if k == nil || k.Degraded {
		t.Fatalf("search failures never abort the pipeline")
	}
	if searcher.calls == 0 {
		t.Fatalf("expected lookup attempts")
	}
}
