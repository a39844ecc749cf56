// Package source supplies candidate mention events, either pulled from the
// platform's recent-search API, pushed via webhook, or streamed over a
// websocket firehose. All modes normalize into the common mention record.
package source

import (
	"context"

	"github.com/duskmoth/replybot/pkg/mention"
)

const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"
	ModeStream  = "stream"
)

// Source yields the next batch of candidate mentions. Poll sources return
// immediately (possibly with an empty batch); push sources block until a
// delivery arrives or the context is done.
type Source interface {
	Next(ctx context.Context) ([]mention.Mention, error)
}
