package tracking

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/duskmoth/replybot/pkg/mention"
)

func sampleMention(id string) mention.Mention {
	return mention.Mention{
		ID:             id,
		AuthorID:       "a1",
		ConversationID: "c1",
		Text:           "@bot thoughts on X",
	}
}

func TestMarkRepliedUpdatesAllRecords(t *testing.T) {
	state := NewState()
	now := time.Now()
	state.MarkReplied(sampleMention("t1"), "my reply", now)

	if !state.HasReplied("t1") {
		t.Fatalf("t1 should be in the replied set")
	}
	if got := state.PairCount("c1", "a1"); got != 1 {
		t.Fatalf("pair count = %d, want 1", got)
	}
	mem := state.Memory[PairKey("c1", "a1")]
	if mem == nil || mem.LastReplyText != "my reply" {
		t.Fatalf("conversation memory not recorded: %+v", mem)
	}

	state.MarkReplied(sampleMention("t2"), "second reply", now.Add(time.Minute))
	if got := state.PairCount("c1", "a1"); got != 2 {
		t.Fatalf("pair count = %d, want 2", got)
	}
	if !state.HasReplied("t1") || !state.HasReplied("t2") {
		t.Fatalf("replied set must keep every id")
	}
}

func TestIsFollowUp(t *testing.T) {
	state := NewState()
	now := time.Now()
	state.MarkReplied(sampleMention("t1"), "reply", now)

	window := 30 * time.Minute

	followUp := sampleMention("t2")
	followUp.Text = "@bot what about the roadmap instead"
	if !state.IsFollowUp(followUp, window, now.Add(5*time.Minute)) {
		t.Fatalf("materially different text within window should be a follow-up")
	}

	repeat := sampleMention("t3")
	if state.IsFollowUp(repeat, window, now.Add(5*time.Minute)) {
		t.Fatalf("identical text is not a follow-up")
	}

	late := sampleMention("t4")
	late.Text = "@bot something new"
	if state.IsFollowUp(late, window, now.Add(2*time.Hour)) {
		t.Fatalf("outside the window is not a follow-up")
	}
}

func TestPruneKeepsRepliedSet(t *testing.T) {
	state := NewState()
	old := time.Now().Add(-60 * 24 * time.Hour)
	state.MarkReplied(sampleMention("t1"), "reply", old)

	removed := state.Prune(30*24*time.Hour, time.Now())
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if len(state.Pairs) != 0 {
		t.Fatalf("stale pair entry should be evicted")
	}
	if !state.HasReplied("t1") {
		t.Fatalf("replied mention ids are never evicted")
	}

	if state.Prune(0, time.Now()) != 0 {
		t.Fatalf("zero max age must disable pruning")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracking.json")

	state := NewState()
	state.Cursor = "12345"
	state.MarkReplied(sampleMention("t1"), "reply", time.Now())

	if err := Save(path, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.HasReplied("t1") {
		t.Fatalf("replied set lost in roundtrip")
	}
	if loaded.PairCount("c1", "a1") != 1 {
		t.Fatalf("pair count lost in roundtrip")
	}
	if loaded.Cursor != "12345" {
		t.Fatalf("cursor lost in roundtrip: %q", loaded.Cursor)
	}
}

func TestLoadToleratesMissingAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	state, err := Load(filepath.Join(dir, "missing.json"))
	if err != nil || state == nil {
		t.Fatalf("missing file must yield empty state, got %v", err)
	}
	if len(state.Replied) != 0 {
		t.Fatalf("expected empty state")
	}
}
