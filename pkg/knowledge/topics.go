package knowledge

import (
	"regexp"
	"sort"
	"strings"
)

// TopicKind classifies how a topic candidate was identified.
type TopicKind string

const (
	KindProject TopicKind = "project"
	KindConcept TopicKind = "concept"
)

// Topic is a candidate research subject found in the thread text.
type Topic struct {
	Name string
	Kind TopicKind
}

const DefaultMaxTopics = 8

var (
	handleRE = regexp.MustCompile(`@([A-Za-z0-9_]{2,15})`)
	// Two or more consecutive capitalized words, e.g. "Lightning Network".
	conceptRE = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)
)

// ExtractTopics scans the thread text for explicit handle references
// (project candidates) and capitalized multi-word phrases (concept
// candidates), dedupes them case-insensitively, and returns the most
// frequently mentioned ones first, capped at max. The exclude set filters
// out the bot's own handle and the mention author.
func ExtractTopics(text string, exclude []string, max int) []Topic {
	if max <= 0 {
		max = DefaultMaxTopics
	}
	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[strings.ToLower(strings.TrimPrefix(name, "@"))] = true
	}

	type candidate struct {
		topic Topic
		count int
		order int
	}
	seen := map[string]*candidate{}
	add := func(name string, kind TopicKind) {
		key := strings.ToLower(name)
		if excluded[key] {
			return
		}
		if c, ok := seen[key]; ok {
			c.count++
			return
		}
		seen[key] = &candidate{
			topic: Topic{Name: name, Kind: kind},
			count: 1,
			order: len(seen),
		}
	}

	for _, match := range handleRE.FindAllStringSubmatch(text, -1) {
		add(match[1], KindProject)
	}
	for _, match := range conceptRE.FindAllStringSubmatch(text, -1) {
		add(match[1], KindConcept)
	}

	candidates := make([]*candidate, 0, len(seen))
	for _, c := range seen {
		candidates = append(candidates, c)
	}
	// Projects before concepts, then by frequency, then first appearance.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.topic.Kind != b.topic.Kind {
			return a.topic.Kind == KindProject
		}
		if a.count != b.count {
			return a.count > b.count
		}
		return a.order < b.order
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	topics := make([]Topic, 0, len(candidates))
	for _, c := range candidates {
		topics = append(topics, c.topic)
	}
	return topics
}
