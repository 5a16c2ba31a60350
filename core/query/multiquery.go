// Package query implements the query-understanding stage that runs before
// retrieval: paraphrase expansion, intent classification, and routing.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragengine/corpusqa/core/llmclient"
)

// simpleQuestionPrefixes are the closed set of openers that mark a question
// as simple enough to skip paraphrase expansion.
var simpleQuestionPrefixes = []string{
	"what is", "what's", "list", "who is", "who's", "how many",
}

// IsSimpleQuestion reports whether text opens with one of the fixed simple
// question prefixes, case-insensitively.
func IsSimpleQuestion(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range simpleQuestionPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

const multiQueryPrompt = `You are rephrasing a user's question into %d alternative phrasings that preserve its meaning but vary its wording, to widen a document search. Respond with exactly %d lines, one phrasing per line, no numbering or commentary.

Question: %s
`

const multiQueryPromptWithHistory = `You are rephrasing a user's question into %d alternative phrasings that preserve its meaning but vary its wording, to widen a document search. Use the recent conversation only for context on what "it"/"this"/etc. refer to. Respond with exactly %d lines, one phrasing per line, no numbering or commentary.

Recent conversation:
%s

Question: %s
`

// Turn is one message of conversation history.
type Turn struct {
	Role    string
	Content string
}

// Generate produces up to n+1 queries (the original question first) for a
// question, optionally conditioned on the last three turns of history. A
// simple question, or any LLM failure, yields just [question].
func Generate(ctx context.Context, client *llmclient.Client, question string, history []Turn, n int) []string {
	if n <= 0 || IsSimpleQuestion(question) {
		return []string{question}
	}

	prompt := buildPrompt(question, history, n)
	raw, err := client.Generate(ctx, prompt, llmclient.Options{Temperature: 0.7})
	if err != nil {
		return []string{question}
	}

	paraphrases := parseParaphrases(raw, question, n)
	return append([]string{question}, paraphrases...)
}

func buildPrompt(question string, history []Turn, n int) string {
	if len(history) == 0 {
		return fmt.Sprintf(multiQueryPrompt, n, n, question)
	}

	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	var b strings.Builder
	for _, turn := range recent {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return fmt.Sprintf(multiQueryPromptWithHistory, n, n, b.String(), question)
}

// parseParaphrases strips numbering/bullets/quotes from each line, drops
// lines under 10 characters, deduplicates against the original question,
// and returns at most n entries.
func parseParaphrases(raw string, question string, n int) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(question)): true}
	var out []string

	for _, line := range strings.Split(raw, "\n") {
		cleaned := cleanLine(line)
		if len(cleaned) < 10 {
			continue
		}
		key := strings.ToLower(cleaned)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cleaned)
		if len(out) >= n {
			break
		}
	}
	return out
}

func cleanLine(line string) string {
	s := strings.TrimSpace(line)
	// Strip leading numbering like "1.", "2)", bullets, and dashes.
	s = strings.TrimLeft(s, "0123456789.)-*• \t")
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

