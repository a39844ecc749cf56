package generate

import (
	"errors"
	"strings"

	"github.com/duskmoth/replybot/pkg/knowledge"
)

// QuestionPolicy selects how interrogative candidate replies are handled.
type QuestionPolicy string

const (
	// QuestionReject skips the mention when the candidate contains a
	// banned interrogative pattern.
	QuestionReject QuestionPolicy = "reject"
	// QuestionRewrite mechanically converts question marks to periods.
	QuestionRewrite QuestionPolicy = "rewrite"
)

// ErrQuestionRejected marks a candidate reply dropped under the reject
// policy. The orchestrator skips the mention without retrying.
var ErrQuestionRejected = errors.New("candidate reply contains a question")

const (
	// DefaultReplyLimit is the platform post limit minus a safety margin.
	DefaultReplyLimit = 240
	// boundarySlack is how far back a whitespace cut may land before a
	// hard cut is used instead.
	boundarySlack = 40
)

var bannedQuestionPhrases = []string{
	"?",
	"could you",
	"can you",
	"need more",
	"what do you",
	"let me know",
}

// Postprocess applies the validation chain to raw model output: fallback for
// empty output, hard length ceiling, and the question policy. It never
// returns an empty string without an error.
func Postprocess(raw string, k *knowledge.Knowledge, limit int, policy QuestionPolicy) (string, error) {
	if limit <= 0 {
		limit = DefaultReplyLimit
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		text = FallbackText(k)
	}
	text = Truncate(text, limit)

	switch policy {
	case QuestionRewrite:
		text = strings.ReplaceAll(text, "?", ".")
	default:
		lowered := strings.ToLower(text)
		for _, phrase := range bannedQuestionPhrases {
			if strings.Contains(lowered, phrase) {
				return "", ErrQuestionRejected
			}
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrQuestionRejected
	}
	return text, nil
}

// FallbackText returns a deterministic canned reply chosen from context
// signals, used when the model output is empty.
func FallbackText(k *knowledge.Knowledge) string {
	if k != nil && k.HasTopics() {
		topic := k.Topics[0].Topic.Name
		return "Interesting thread. " + topic + " has been showing up in a lot of conversations lately, worth keeping an eye on."
	}
	return "Interesting point. This space moves fast, and threads like this one are usually where the signal shows up first."
}

// Truncate enforces the hard character ceiling. Output is either a clean
// prefix ending at a whitespace boundary, or a hard cut with an appended
// ellipsis, never a silent mid-word cut. Trailing partial punctuation is
// stripped from boundary cuts.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	// Boundary search and slack comparison both happen in rune positions,
	// so multi-byte text cannot skew the slack window.
	cut := runes[:limit]
	boundary := -1
	for i := len(cut) - 1; i >= 0; i-- {
		if isSpace(cut[i]) {
			boundary = i
			break
		}
	}
	if boundary >= limit-boundarySlack && boundary > 0 {
		return strings.TrimRight(strings.TrimSpace(string(cut[:boundary])), ",;:-—")
	}
	return string(runes[:limit-1]) + "…"
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
