// Package evaluate implements the Evaluator: scores a retrieved answer on
// quality, completeness, and grounding, and prescribes what to change on the
// next retrieval attempt when the score falls short.
package evaluate

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/ragengine/corpusqa/core/llmclient"
)

// DefaultSufficiencyThreshold is the overall score an answer must meet or
// exceed to be considered sufficient, absent an explicit override.
const DefaultSufficiencyThreshold = 0.7

// Score holds the three component scores and their arithmetic-mean overall.
type Score struct {
	Quality      float64
	Completeness float64
	Relevance    float64
	Overall      float64
}

// Prescription names the retrieval-parameter changes the Pipeline should
// apply before its next attempt when a Score is insufficient.
type Prescription struct {
	ExpandSearch bool
	IncreaseTopK int
	UseEntities  bool
	RefineQuery  bool
}

var refusalPatterns = []string{
	"i don't know", "i do not know", "no relevant information",
	"i cannot answer", "i can't answer", "not enough information",
}

var leadingIntRe = regexp.MustCompile(`-?\d+`)

// Evaluate scores a (query, answer, chunk texts) tuple and reports
// whether the answer is sufficient against threshold (DefaultSufficiencyThreshold
// when threshold <= 0).
func Evaluate(ctx context.Context, client *llmclient.Client, query, answer string, chunkTexts []string, threshold float64) (Score, bool, Prescription) {
	if threshold <= 0 {
		threshold = DefaultSufficiencyThreshold
	}

	score := Score{
		Quality:      scoreQuality(ctx, client, query, answer),
		Completeness: scoreCompleteness(ctx, client, query, answer),
		Relevance:    scoreRelevance(answer, chunkTexts),
	}
	score.Overall = (score.Quality + score.Completeness + score.Relevance) / 3

	sufficient := score.Overall >= threshold
	var prescription Prescription
	if !sufficient {
		prescription = Prescription{
			ExpandSearch: score.Completeness < 0.6,
			IncreaseTopK: 10,
			UseEntities:  score.Relevance < 0.6,
			RefineQuery:  score.Quality < 0.6,
		}
	}
	return score, sufficient, prescription
}

func scoreQuality(ctx context.Context, client *llmclient.Client, query, answer string) float64 {
	if heuristic, ok := qualityHeuristic(answer); ok {
		return heuristic
	}

	prompt := "On a scale of 0 to 10, how good is this answer to the question? Respond with only the integer.\n\nQuestion: " +
		query + "\n\nAnswer: " + answer
	raw, err := client.Generate(ctx, prompt, llmclient.Options{Temperature: 0})
	if n, ok := parseLeadingInt(raw); err == nil && ok {
		return clamp01(float64(n) / 10)
	}
	return lengthBandedFallback(answer)
}

func qualityHeuristic(answer string) (float64, bool) {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return 0.0, true
	}
	lower := strings.ToLower(trimmed)
	for _, pattern := range refusalPatterns {
		if strings.Contains(lower, pattern) {
			return 0.2, true
		}
	}
	return 0, false
}

func lengthBandedFallback(answer string) float64 {
	length := len(strings.TrimSpace(answer))
	switch {
	case length == 0:
		return 0.3
	case length < 50:
		return 0.5
	default:
		return 0.7
	}
}

func scoreCompleteness(ctx context.Context, client *llmclient.Client, query, answer string) float64 {
	prompt := "On a scale of 0 to 10, does this answer fully address the question, leaving nothing important out? Respond with only the integer.\n\nQuestion: " +
		query + "\n\nAnswer: " + answer
	raw, err := client.Generate(ctx, prompt, llmclient.Options{Temperature: 0})
	if n, ok := parseLeadingInt(raw); err == nil && ok {
		return clamp01(float64(n) / 10)
	}
	return jaccardOverlap(query, answer)
}

func scoreRelevance(answer string, chunkTexts []string) float64 {
	if len(chunkTexts) == 0 {
		return 0.2
	}
	answerTokens := tokenize(answer)
	if len(answerTokens) == 0 {
		return 0.2
	}

	combined := tokenSet(strings.Join(chunkTexts, " "))
	matched := 0
	for _, tok := range answerTokens {
		if combined[tok] {
			matched++
		}
	}
	fraction := float64(matched) / float64(len(answerTokens))
	return clamp01(fraction * 1.5)
}

func jaccardOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(text) {
		set[tok] = true
	}
	return set
}

func parseLeadingInt(s string) (int, bool) {
	match := leadingIntRe.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
