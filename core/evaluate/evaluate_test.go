package evaluate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/ragengine/corpusqa/core/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScoringClient(t *testing.T, score int) *llmclient.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": strconv.Itoa(score)})
	}))
	t.Cleanup(server.Close)
	return llmclient.New(llmclient.Config{BaseURL: server.URL, Model: "test-model"})
}

func TestQualityHeuristicEmptyAnswer(t *testing.T) {
	v, ok := qualityHeuristic("")
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestQualityHeuristicRefusal(t *testing.T) {
	v, ok := qualityHeuristic("I don't know the answer to that.")
	require.True(t, ok)
	assert.Equal(t, 0.2, v)
}

func TestQualityHeuristicSkipsForRealAnswer(t *testing.T) {
	_, ok := qualityHeuristic("The company reported $5M in revenue.")
	assert.False(t, ok)
}

func TestParseLeadingInt(t *testing.T) {
	n, ok := parseLeadingInt("8 out of 10")
	require.True(t, ok)
	assert.Equal(t, 8, n)

	_, ok = parseLeadingInt("no numbers here")
	assert.False(t, ok)
}

func TestJaccardOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, jaccardOverlap("the quick fox", "the quick fox"), 0.0001)
	assert.Equal(t, 0.0, jaccardOverlap("apple banana", "car truck"))
}

func TestScoreRelevanceNoChunks(t *testing.T) {
	assert.Equal(t, 0.2, scoreRelevance("some answer", nil))
}

func TestScoreRelevanceHighOverlap(t *testing.T) {
	chunks := []string{"Revenue grew to five million dollars in Q3 2024 driven by strong sales"}
	answer := "Revenue grew to five million dollars in Q3 2024"
	score := scoreRelevance(answer, chunks)
	assert.InDelta(t, 1.0, score, 0.0001)
}

func TestScoreRelevanceLowOverlapCapped(t *testing.T) {
	chunks := []string{"completely unrelated passage about gardening"}
	answer := "revenue grew to five million dollars"
	score := scoreRelevance(answer, chunks)
	assert.Less(t, score, 1.0)
}

func TestEvaluateSufficientAboveThreshold(t *testing.T) {
	client := newScoringClient(t, 8)
	chunks := []string{"Revenue grew to five million dollars in Q3 2024"}

	score, sufficient, _ := Evaluate(context.Background(), client, "What was Q3 revenue?", "Revenue grew to five million dollars in Q3 2024", chunks, 0)

	assert.True(t, sufficient)
	assert.GreaterOrEqual(t, score.Overall, DefaultSufficiencyThreshold)
}

func TestEvaluatePrescribesRetryWhenInsufficient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "2"})
	}))
	defer server.Close()
	client := llmclient.New(llmclient.Config{BaseURL: server.URL, Model: "test-model"})

	score, sufficient, prescription := Evaluate(context.Background(), client, "What was Q3 revenue?", "I don't know.", nil, 0.7)

	assert.False(t, sufficient)
	assert.Less(t, score.Overall, 0.7)
	assert.True(t, prescription.ExpandSearch)
	assert.True(t, prescription.UseEntities)
	assert.True(t, prescription.RefineQuery)
	assert.Equal(t, 10, prescription.IncreaseTopK)
}

func TestEvaluateEmptyAnswerIsInsufficient(t *testing.T) {
	client := newScoringClient(t, 8)
	score, sufficient, _ := Evaluate(context.Background(), client, "What was Q3 revenue?", "", nil, 0)
	assert.False(t, sufficient)
	assert.Equal(t, 0.0, score.Quality)
}
