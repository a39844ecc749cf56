package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/filter"
	"github.com/duskmoth/replybot/pkg/health"
	"github.com/duskmoth/replybot/pkg/knowledge"
	"github.com/duskmoth/replybot/pkg/mention"
	"github.com/duskmoth/replybot/pkg/platform"
	"github.com/duskmoth/replybot/pkg/tracking"
)

type fakeSource struct {
	batches [][]mention.Mention
	err     error
}

func (f *fakeSource) Next(ctx context.Context) ([]mention.Mention, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeBuilder struct{}

func (fakeBuilder) Build(ctx context.Context, m mention.Mention) *knowledge.Knowledge {
	return &knowledge.Knowledge{Summary: m.Text, Degraded: true}
}

type fakeGenerator struct {
	reply string
	err   error
	seen  []*knowledge.Knowledge
}

func (f *fakeGenerator) Generate(ctx context.Context, m mention.Mention, k *knowledge.Knowledge) (string, error) {
	f.seen = append(f.seen, k)
	return f.reply, f.err
}

type fakePublisher struct {
	err   error
	posts []string
}

func (f *fakePublisher) Post(ctx context.Context, m mention.Mention, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.posts = append(f.posts, m.ID)
	return "ext-" + m.ID, nil
}

func eligible(id string) mention.Mention {
	return mention.Mention{
		ID:             id,
		AuthorID:       "a1",
		ConversationID: "c1",
		Text:           "@bot thoughts on X",
		AuthorVerified: true,
	}
}

func newTestEngine(t *testing.T, src *fakeSource, state *tracking.State, gen *fakeGenerator, pub *fakePublisher) *Engine {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "tracking.json")
	return New(
		Config{CooldownSecs: 60},
		filter.Config{Handle: "bot", PairCeiling: 3, PerCycleLimit: 1},
		src, state, storePath,
		fakeBuilder{}, gen, pub,
		health.NewCounters(), zerolog.Nop(),
	)
}

func TestCycleHappyPath(t *testing.T) {
	state := tracking.NewState()
	pub := &fakePublisher{}
	src := &fakeSource{batches: [][]mention.Mention{{eligible("t1")}}}
	e := newTestEngine(t, src, state, &fakeGenerator{reply: "A solid take."}, pub)

	e.RunCycle(context.Background())

	if len(pub.posts) != 1 || pub.posts[0] != "t1" {
		t.Fatalf("expected one publish for t1, got %v", pub.posts)
	}
	if !state.HasReplied("t1") {
		t.Fatalf("t1 must enter the replied set after publish")
	}
	if state.PairCount("c1", "a1") != 1 {
		t.Fatalf("pair count = %d, want 1", state.PairCount("c1", "a1"))
	}

	// Persisted synchronously: a fresh load sees the same state.
	loaded, err := tracking.Load(e.storePath)
	if err != nil || !loaded.HasReplied("t1") {
		t.Fatalf("tracking not flushed to disk: %v", err)
	}
}

func TestCycleAtMostOneReply(t *testing.T) {
	state := tracking.NewState()
	pub := &fakePublisher{}
	batch := []mention.Mention{eligible("t1"), eligible("t2"), eligible("t3")}
	// Distinct pairs so only the cycle budget can stop them.
	batch[1].ConversationID, batch[1].AuthorID = "c2", "a2"
	batch[2].ConversationID, batch[2].AuthorID = "c3", "a3"
	src := &fakeSource{batches: [][]mention.Mention{batch}}
	e := newTestEngine(t, src, state, &fakeGenerator{reply: "A solid take."}, pub)

	e.RunCycle(context.Background())

	if len(pub.posts) != 1 {
		t.Fatalf("cycle must publish at most one reply, got %d", len(pub.posts))
	}
}

func TestSecondReplySeesConversationMemory(t *testing.T) {
	state := tracking.NewState()
	state.MarkReplied(eligible("t0"), "My earlier point.", time.Now().Add(-5*time.Minute))

	followUp := eligible("t1")
	followUp.Text = "@bot but what about fees"
	src := &fakeSource{batches: [][]mention.Mention{{followUp}}}
	gen := &fakeGenerator{reply: "A different take."}
	e := newTestEngine(t, src, state, gen, &fakePublisher{})

	e.RunCycle(context.Background())

	if len(gen.seen) != 1 {
		t.Fatalf("expected one generation, got %d", len(gen.seen))
	}
	k := gen.seen[0]
	if k.PriorReply != "My earlier point." {
		t.Fatalf("prior reply not surfaced to the generator: %q", k.PriorReply)
	}
	if !k.FollowUp {
		t.Fatalf("recent mention with different text from the same pair is a follow-up")
	}
}

func TestFirstContactCarriesNoMemory(t *testing.T) {
	state := tracking.NewState()
	gen := &fakeGenerator{reply: "A solid take."}
	src := &fakeSource{batches: [][]mention.Mention{{eligible("t1")}}}
	e := newTestEngine(t, src, state, gen, &fakePublisher{})

	e.RunCycle(context.Background())

	if len(gen.seen) != 1 || gen.seen[0].PriorReply != "" || gen.seen[0].FollowUp {
		t.Fatalf("fresh pair must not carry memory: %+v", gen.seen)
	}
}

func TestCycleReplayDenied(t *testing.T) {
	state := tracking.NewState()
	state.MarkReplied(eligible("t1"), "earlier", time.Now())
	pub := &fakePublisher{}
	src := &fakeSource{batches: [][]mention.Mention{{eligible("t1")}}}
	e := newTestEngine(t, src, state, &fakeGenerator{reply: "A solid take."}, pub)

	e.RunCycle(context.Background())

	if len(pub.posts) != 0 {
		t.Fatalf("replayed mention must not be published again")
	}
}

func TestPublishFailureLeavesTrackingUntouched(t *testing.T) {
	state := tracking.NewState()
	pub := &fakePublisher{err: errors.New("boom")}
	src := &fakeSource{batches: [][]mention.Mention{{eligible("t1")}}}
	e := newTestEngine(t, src, state, &fakeGenerator{reply: "A solid take."}, pub)

	e.RunCycle(context.Background())

	if state.HasReplied("t1") {
		t.Fatalf("failed publish must leave tracking unmodified for retry")
	}
	if state.PairCount("c1", "a1") != 0 {
		t.Fatalf("pair count must stay zero after failed publish")
	}
}

func TestGenerationRejectionSkipsMention(t *testing.T) {
	state := tracking.NewState()
	pub := &fakePublisher{}
	src := &fakeSource{batches: [][]mention.Mention{{eligible("t1")}}}
	e := newTestEngine(t, src, state, &fakeGenerator{err: errors.New("contains a question")}, pub)

	e.RunCycle(context.Background())

	if len(pub.posts) != 0 {
		t.Fatalf("rejected candidate must not publish")
	}
	if state.HasReplied("t1") {
		t.Fatalf("rejected candidate must not enter the replied set")
	}
}

func TestRateLimitTriggersCooldown(t *testing.T) {
	state := tracking.NewState()
	src := &fakeSource{err: &platform.RateLimitError{}}
	e := newTestEngine(t, src, state, &fakeGenerator{reply: "x"}, &fakePublisher{})

	now := time.Now()
	e.now = func() time.Time { return now }
	e.RunCycle(context.Background())

	if !e.cooldownUntil.After(now) {
		t.Fatalf("rate limit must start a cooldown window")
	}
	if got := e.cooldownUntil.Sub(now); got != 60*time.Second {
		t.Fatalf("cooldown = %s, want 60s", got)
	}

	// While cooling down, the source must not be polled.
	src.err = nil
	src.batches = [][]mention.Mention{{eligible("t1")}}
	e.RunCycle(context.Background())
	if len(src.batches) != 1 {
		t.Fatalf("fetch must be suppressed during cooldown")
	}
}
