// Package health exposes a small read-only HTTP surface with mention/reply
// counters and uptime, consumed as an observability sink.
package health

import (
	"net/http"
	"sync"
	"time"

	"go.mau.fi/util/exhttp"
)

// Counters aggregates orchestrator activity. Safe for concurrent use.
type Counters struct {
	mu            sync.Mutex
	mentionsSeen  int64
	repliesSent   int64
	cyclesRun     int64
	skipsByReason map[string]int64
	lastCycleAt   time.Time
	lastReplyAt   time.Time
}

func NewCounters() *Counters {
	return &Counters{skipsByReason: map[string]int64{}}
}

func (c *Counters) MentionSeen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mentionsSeen++
}

func (c *Counters) ReplySent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repliesSent++
	c.lastReplyAt = time.Now()
}

func (c *Counters) CycleRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cyclesRun++
	c.lastCycleAt = time.Now()
}

func (c *Counters) Skip(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipsByReason[reason]++
}

func (c *Counters) snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	skips := make(map[string]int64, len(c.skipsByReason))
	for reason, count := range c.skipsByReason {
		skips[reason] = count
	}
	out := map[string]any{
		"mentions_seen": c.mentionsSeen,
		"replies_sent":  c.repliesSent,
		"cycles_run":    c.cyclesRun,
		"skips":         skips,
	}
	if !c.lastCycleAt.IsZero() {
		out["last_cycle_at"] = c.lastCycleAt.UTC().Format(time.RFC3339)
	}
	if !c.lastReplyAt.IsZero() {
		out["last_reply_at"] = c.lastReplyAt.UTC().Format(time.RFC3339)
	}
	return out
}

// Handler serves GET /healthz.
type Handler struct {
	counters *Counters
	started  time.Time
}

func NewHandler(counters *Counters) *Handler {
	return &Handler{counters: counters, started: time.Now()}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := h.counters.snapshot()
	body["uptime_seconds"] = int64(time.Since(h.started).Seconds())
	exhttp.WriteJSONResponse(w, http.StatusOK, body)
}
