package query

import "strings"

// Decision is one of the three routing outcomes Route can produce.
type Decision string

const (
	DecisionDirectReply Decision = "direct_reply"
	DecisionClarify     Decision = "clarify"
	DecisionRetrieve    Decision = "retrieve"
)

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "greetings": true,
}

var acknowledgments = []string{"thanks", "thank you", "ok", "okay", "bye", "goodbye", "cool", "got it"}

var metaQuestions = []string{"what can you do", "help", "who are you", "what are you"}

var fillerWords = map[string]bool{
	"it": true, "this": true, "that": true, "why": true, "what": true, "huh": true,
}

// Route classifies a question into direct_reply, clarify, or retrieve, and
// returns the identifier of the rule that matched so callers can attach it
// to the response for diagnostics.
func Route(question string, documentCount int) (Decision, string) {
	normalized := strings.ToLower(strings.TrimSpace(question))
	words := strings.Fields(normalized)

	if len(words) > 0 && len(words) <= 2 && greetings[strings.Trim(words[0], "!.,?")] {
		return DecisionDirectReply, "greeting"
	}
	for _, ack := range acknowledgments {
		if normalized == ack || strings.HasPrefix(normalized, ack+" ") {
			return DecisionDirectReply, "acknowledgment"
		}
	}
	for _, meta := range metaQuestions {
		if strings.Contains(normalized, meta) {
			return DecisionDirectReply, "meta_question"
		}
	}

	if len(words) < 3 && documentCount > 1 {
		return DecisionClarify, "short_question_multi_doc"
	}
	if len(words) == 1 && fillerWords[words[0]] {
		return DecisionClarify, "filler_word"
	}

	return DecisionRetrieve, "default"
}
