package knowledge

import (
	"fmt"
	"strings"

	"github.com/duskmoth/replybot/pkg/platform"
)

// RootPurpose is the classified intent of a conversation's root message.
type RootPurpose string

const (
	PurposePriceAction  RootPurpose = "price action"
	PurposeLaunch       RootPurpose = "product launch"
	PurposeHiring       RootPurpose = "hiring"
	PurposeFundraising  RootPurpose = "fundraising"
	PurposePartnership  RootPurpose = "partnership"
	PurposeGratitude    RootPurpose = "gratitude"
	PurposeAnnouncement RootPurpose = "announcement"
	PurposeOther        RootPurpose = "other"
)

var purposeKeywords = []struct {
	purpose  RootPurpose
	keywords []string
}{
	{PurposePriceAction, []string{"price", "pump", "dump", "ath", "all time high", "chart", "breakout", "dip", "rally"}},
	{PurposeLaunch, []string{"launch", "launching", "shipped", "now live", "is live", "released", "introducing", "mainnet"}},
	{PurposeHiring, []string{"hiring", "join our team", "we're looking for", "open role", "job opening", "apply now"}},
	{PurposeFundraising, []string{"raised", "funding", "seed round", "series a", "series b", "investment from", "backed by"}},
	{PurposePartnership, []string{"partnership", "partnering", "teamed up", "collaboration", "integrates with", "integration with"}},
	{PurposeGratitude, []string{"thank you", "thanks to", "grateful", "appreciate", "shoutout"}},
	{PurposeAnnouncement, []string{"announcing", "announcement", "excited to share", "big news", "update:"}},
}

// ClassifyRoot assigns a purpose label to the root message using keyword
// heuristics. The first matching class wins; classes are ordered by
// specificity so price chatter does not get absorbed into "announcement".
func ClassifyRoot(text string) RootPurpose {
	lowered := strings.ToLower(text)
	for _, class := range purposeKeywords {
		for _, kw := range class.keywords {
			if strings.Contains(lowered, kw) {
				return class.purpose
			}
		}
	}
	return PurposeOther
}

// Thread is the reconstructed conversation context.
type Thread struct {
	Root     platform.ThreadMessage
	Messages []platform.ThreadMessage
	Purpose  RootPurpose
	Summary  string
}

// BuildThread derives the thread context from conversation messages, which
// must already be sorted ascending by creation time. The earliest message is
// treated as the root.
func BuildThread(messages []platform.ThreadMessage) *Thread {
	if len(messages) == 0 {
		return nil
	}
	root := messages[0]
	t := &Thread{
		Root:     root,
		Messages: messages,
		Purpose:  ClassifyRoot(root.Text),
	}
	t.Summary = summarize(t)
	return t
}

func summarize(t *Thread) string {
	root := strings.Join(strings.Fields(t.Root.Text), " ")
	if len(root) > 280 {
		root = root[:280]
	}
	if len(t.Messages) <= 1 {
		return fmt.Sprintf("Thread about %s: %q", t.Purpose, root)
	}
	return fmt.Sprintf("Thread about %s (%d messages): %q", t.Purpose, len(t.Messages), root)
}

// Text concatenates every message in the thread, used for topic scanning.
func (t *Thread) Text() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Messages))
	for _, msg := range t.Messages {
		parts = append(parts, msg.Text)
	}
	return strings.Join(parts, "\n")
}
