// Package engine implements the top-level query-time state machine:
// Start -> Classify -> Route -> {DirectReply, Clarify, RetrieveLoop} ->
// Respond. It is the orchestrator that wires query understanding,
// retrieval, and evaluation into one bounded-retry answer loop.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ragengine/corpusqa/core/evaluate"
	"github.com/ragengine/corpusqa/core/llmclient"
	"github.com/ragengine/corpusqa/core/query"
	"github.com/ragengine/corpusqa/core/retrieval"
	"github.com/ragengine/corpusqa/model"
)

// DefaultMaxRetries bounds RetrieveLoop to 3 attempts total (1 initial + 2 retries).
const DefaultMaxRetries = 2

// DefaultContextCharBudget is the character ceiling for the assembled LLM context.
const DefaultContextCharBudget = 12000

const truncationMarker = "\n... [context truncated]"
const noInformationAnswer = "I don't have relevant information in the documents to answer that question."
const noDocumentsAnswer = "No documents uploaded yet. Please upload a document to get started."

// Response is the shape every exit of the state machine converges on.
type Response struct {
	Answer     string
	Citations  []model.Citation
	Sources    []string
	Entities   []string
	Strategy   string
	Evaluation *evaluate.Score
	Attempts   int
}

// Engine wires a Retriever and an LLM client into the bounded retry loop.
// It holds no per-request mutable state, so one Engine is safe to share
// across concurrent Answer calls.
type Engine struct {
	Retriever         *retrieval.Retriever
	LLM               *llmclient.Client
	QualityThreshold  float64
	ContextCharBudget int
	MaxRetries        int
}

// New constructs an Engine with the default quality threshold, context
// budget, and retry count.
func New(retriever *retrieval.Retriever, llm *llmclient.Client) *Engine {
	return &Engine{
		Retriever:         retriever,
		LLM:               llm,
		QualityThreshold:  evaluate.DefaultSufficiencyThreshold,
		ContextCharBudget: DefaultContextCharBudget,
		MaxRetries:        DefaultMaxRetries,
	}
}

// Answer runs Classify -> Route -> {DirectReply, Clarify, RetrieveLoop} for
// one question and shapes the result as a Response. An empty corpus
// (documentCount <= 0) short-circuits any retrieval-class decision before
// Route's rule-based classification even runs a query against it: no
// retrieval, no LLM call, just the stock "no documents" envelope.
func (e *Engine) Answer(ctx context.Context, question string, history []query.Turn, docFilter []uuid.UUID, documentCount int) *Response {
	decision, rule := query.Route(question, documentCount)
	switch decision {
	case query.DecisionDirectReply:
		return &Response{Answer: directReply(rule), Strategy: string(decision)}
	case query.DecisionClarify:
		return &Response{Answer: clarifyMessage(), Strategy: string(decision)}
	default:
		if documentCount <= 0 {
			return &Response{Answer: noDocumentsAnswer, Strategy: string(decision)}
		}
		return e.retrieveLoop(ctx, question, history, docFilter)
	}
}

func (e *Engine) retrieveLoop(ctx context.Context, question string, history []query.Turn, docFilter []uuid.UUID) *Response {
	maxAttempts := e.MaxRetries + 1
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxRetries + 1
	}
	classification := query.Classify(question)
	topK := e.Retriever.TopK

	var best *Response
	anyChunksSeen := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		queries := []string{question}
		if !query.IsSimpleQuestion(question) {
			queries = query.Generate(ctx, e.LLM, question, history, 2)
		}

		attemptRetriever := *e.Retriever
		attemptRetriever.TopK = topK
		chunks, err := attemptRetriever.Retrieve(ctx, queries, docFilter)
		if err != nil {
			chunks = nil
		}
		if len(chunks) > 0 {
			anyChunksSeen = true
		}

		contextText, entityNames := e.assembleContext(chunks)
		answer := e.callLLM(ctx, question, contextText, classification, chunks)

		chunkTexts := make([]string, len(chunks))
		for i, c := range chunks {
			chunkTexts[i] = c.Text
		}
		score, sufficient, prescription := evaluate.Evaluate(ctx, e.LLM, question, answer, chunkTexts, e.QualityThreshold)

		resp := &Response{
			Answer:     answer,
			Citations:  citationsOf(chunks),
			Sources:    sourcesOf(chunks),
			Entities:   entityNames,
			Strategy:   "retrieve",
			Evaluation: &score,
			Attempts:   attempt,
		}

		if best == nil || score.Overall > best.Evaluation.Overall {
			best = resp
		}

		if sufficient {
			return best
		}
		if prescription.IncreaseTopK > 0 {
			topK += prescription.IncreaseTopK
		}
	}

	if !anyChunksSeen {
		return &Response{Answer: noInformationAnswer, Strategy: "retrieve", Attempts: maxAttempts}
	}
	return best
}

func (e *Engine) assembleContext(chunks []retrieval.RankedChunk) (string, []string) {
	budget := e.ContextCharBudget
	if budget <= 0 {
		budget = DefaultContextCharBudget
	}

	var b strings.Builder
	for _, c := range chunks {
		label := c.Source
		if label == "" {
			label = c.ChunkID.String()
		}
		line := fmt.Sprintf("[%s]: %s\n", label, c.Text)
		if b.Len()+len(line) > budget {
			b.WriteString(truncationMarker)
			break
		}
		b.WriteString(line)
	}

	var entityNames []string
	if e.Retriever.EntityExtractor != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		if entities, err := e.Retriever.EntityExtractor(strings.Join(texts, " ")); err == nil && len(entities) > 0 {
			seen := map[string]bool{}
			for _, ent := range entities {
				if seen[ent.Name] {
					continue
				}
				seen[ent.Name] = true
				entityNames = append(entityNames, ent.Name)
			}
			if len(entityNames) > 0 {
				b.WriteString("\nEntities mentioned: " + strings.Join(entityNames, ", ") + "\n")
			}
		}
	}
	return b.String(), entityNames
}

func (e *Engine) callLLM(ctx context.Context, question, contextText string, classification query.Type, chunks []retrieval.RankedChunk) string {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\n%s", contextText, question, instructionTail(classification))
	answer, err := e.LLM.Generate(ctx, prompt, llmclient.Options{Temperature: 0.2})
	if err != nil {
		return fallbackAnswer(chunks)
	}
	return answer
}

// fallbackAnswer is the deterministic stand-in used when the LLM call
// itself fails: the first 500 characters of the top-ranked chunk.
func fallbackAnswer(chunks []retrieval.RankedChunk) string {
	if len(chunks) == 0 {
		return noInformationAnswer
	}
	text := chunks[0].Text
	if len(text) > 500 {
		text = text[:500]
	}
	return text
}

func instructionTail(t query.Type) string {
	switch t {
	case query.TypeDocumentList:
		return "List only the distinct document sources referenced in the context above."
	case query.TypeSummary:
		return "Provide a concise summary covering the main points in the context above."
	case query.TypeDate:
		return "Answer with the specific date or time referenced in the context above, if any."
	case query.TypeEntity:
		return "Name the specific person, organization, or entity the question asks about."
	case query.TypeFact:
		return "Answer the factual question directly and concisely using only the context above."
	default:
		return "Answer the question as completely as the context above allows."
	}
}

func directReply(rule string) string {
	switch rule {
	case "greeting":
		return "Hello! Ask me anything about the documents you've uploaded."
	case "acknowledgment":
		return "You're welcome!"
	case "meta_question":
		return "I can answer questions about the documents you've uploaded and cite the passages I used."
	default:
		return "Hello!"
	}
}

func clarifyMessage() string {
	return "Could you clarify your question, or specify which document you mean?"
}

func citationsOf(chunks []retrieval.RankedChunk) []model.Citation {
	out := make([]model.Citation, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Citation)
	}
	return out
}

func sourcesOf(chunks []retrieval.RankedChunk) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range chunks {
		if c.Source == "" || seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		out = append(out, c.Source)
	}
	return out
}
