package knowledge

import "strings"

// Sentiment is the coarse tone of a research snippet.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// Classifier labels a piece of text with a sentiment. Pluggable so the
// keyword heuristic can be swapped for a model-based classifier without
// touching the pipeline shape.
type Classifier interface {
	Classify(text string) Sentiment
}

// KeywordClassifier counts bullish vs bearish keyword hits and defaults to
// neutral on a tie.
type KeywordClassifier struct {
	Bullish []string
	Bearish []string
}

var defaultBullish = []string{
	"surge", "rally", "growth", "record", "gain", "bullish", "adoption",
	"breakthrough", "milestone", "soar", "partnership", "upgrade",
}

var defaultBearish = []string{
	"crash", "drop", "decline", "hack", "exploit", "bearish", "lawsuit",
	"shutdown", "layoff", "plunge", "scam", "warning",
}

// NewKeywordClassifier returns a classifier with the default keyword lists.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{Bullish: defaultBullish, Bearish: defaultBearish}
}

func (c *KeywordClassifier) Classify(text string) Sentiment {
	lowered := strings.ToLower(text)
	bullish, bearish := 0, 0
	for _, kw := range c.Bullish {
		bullish += strings.Count(lowered, kw)
	}
	for _, kw := range c.Bearish {
		bearish += strings.Count(lowered, kw)
	}
	switch {
	case bullish > bearish:
		return SentimentBullish
	case bearish > bullish:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}
