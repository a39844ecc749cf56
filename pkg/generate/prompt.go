package generate

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/duskmoth/replybot/pkg/knowledge"
	"github.com/duskmoth/replybot/pkg/mention"
)

const defaultPersona = `You are a sharp, friendly commentator on a social platform.
Reply in one or two short sentences. Make a concrete statement, never ask a question.
Do not use hashtags. Stay on the topic of the conversation.`

const promptEncoding = "cl100k_base"

// BuildPrompt assembles the system directive and the user message from the
// mention and its knowledge context.
func BuildPrompt(m mention.Mention, k *knowledge.Knowledge, persona string) (system, user string) {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}

	var sb strings.Builder
	if k != nil && !k.Degraded {
		fmt.Fprintf(&sb, "Conversation context: %s\n", k.Summary)
		fmt.Fprintf(&sb, "The thread is about: %s\n", k.RootPurpose)
		for _, tr := range k.Topics {
			fmt.Fprintf(&sb, "\nResearch on %s (%s, %d sources):\n", tr.Topic.Name, tr.Topic.Kind, tr.SourceCount)
			for _, sn := range tr.Snippets {
				fmt.Fprintf(&sb, "- [%s] %s\n", sn.Sentiment, sn.Text)
			}
		}
		sb.WriteString("\n")
	}
	if k != nil && k.PriorReply != "" {
		fmt.Fprintf(&sb, "You already replied in this conversation: %q\n", k.PriorReply)
		if k.FollowUp {
			sb.WriteString("This mention is a follow-up to that reply. Address it directly and do not repeat your earlier point.\n")
		} else {
			sb.WriteString("Do not repeat that point.\n")
		}
	}
	fmt.Fprintf(&sb, "Someone mentioned you: %q\nWrite your reply.", m.Text)
	return persona, sb.String()
}

// TrimToTokenBudget cuts the user message down to at most budget tokens,
// dropping trailing lines first so the mention itself survives. A zero or
// negative budget disables trimming, as does an unavailable encoding.
func TrimToTokenBudget(user string, budget int) string {
	if budget <= 0 {
		return user
	}
	enc, err := tiktoken.GetEncoding(promptEncoding)
	if err != nil {
		return user
	}
	if len(enc.Encode(user, nil, nil)) <= budget {
		return user
	}

	lines := strings.Split(user, "\n")
	// The mention line and instruction sit at the end; keep them, drop
	// context lines from the middle outward.
	tail := ""
	if len(lines) >= 2 {
		tail = strings.Join(lines[len(lines)-2:], "\n")
		lines = lines[:len(lines)-2]
	}
	for len(lines) > 0 {
		lines = lines[:len(lines)-1]
		candidate := strings.TrimSpace(strings.Join(lines, "\n") + "\n" + tail)
		if len(enc.Encode(candidate, nil, nil)) <= budget {
			return candidate
		}
	}
	tokens := enc.Encode(tail, nil, nil)
	if len(tokens) > budget {
		tokens = tokens[:budget]
	}
	return enc.Decode(tokens)
}
