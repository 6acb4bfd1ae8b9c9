package conversation

import (
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
)

type topicTag struct {
	Topic      string
	Confidence float64
	Keywords   string
}

// topicKeywords maps coaching topics to the vocabulary that signals them.
var topicKeywords = map[string][]string{
	"strengths":  {"strength", "strengths", "thinking", "feeling", "acting", "planning", "starcard"},
	"flow":       {"flow", "focus", "absorbed", "immersion", "energized"},
	"wellbeing":  {"wellbeing", "well-being", "ladder", "satisfaction", "happiness"},
	"career":     {"career", "job", "role", "promotion", "team", "manager"},
	"reflection": {"reflection", "journal", "insight", "learned", "takeaway"},
}

var positiveWords = map[string]struct{}{
	"great": {}, "good": {}, "love": {}, "excited": {}, "helpful": {},
	"thanks": {}, "thank": {}, "enjoy": {}, "progress": {}, "confident": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "stuck": {}, "frustrated": {}, "confused": {}, "worried": {},
	"anxious": {}, "unhappy": {}, "difficult": {}, "problem": {}, "wrong": {},
}

// analyzeTopics tags a conversation with coaching topics based on the
// nouns and adjectives in both sides of the exchange.
func analyzeTopics(userMessage, response string) ([]topicTag, error) {
	doc, err := prose.NewDocument(userMessage + " " + response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conversation text: %w", err)
	}

	present := make(map[string]struct{})
	for _, tok := range doc.Tokens() {
		if strings.HasPrefix(tok.Tag, "NN") || strings.HasPrefix(tok.Tag, "JJ") {
			present[strings.ToLower(tok.Text)] = struct{}{}
		}
	}

	var tags []topicTag
	for topic, keywords := range topicKeywords {
		var matched []string
		for _, kw := range keywords {
			if _, ok := present[kw]; ok {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}

		confidence := float64(len(matched)) / float64(len(keywords))
		if confidence > 1 {
			confidence = 1
		}
		tags = append(tags, topicTag{
			Topic:      topic,
			Confidence: confidence,
			Keywords:   strings.Join(matched, ","),
		})
	}

	return tags, nil
}

// analyzeSentiment is a coarse lexicon count over the user's words.
func analyzeSentiment(userMessage string) string {
	var pos, neg int
	for _, w := range strings.Fields(strings.ToLower(userMessage)) {
		w = strings.Trim(w, ".,!?;:'\"")
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}

	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}
