package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	grapher "github.com/ragengine/corpusqa"
	"github.com/ragengine/corpusqa/core/llmclient"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
)

const sampleContent1 = `This is a comprehensive document about graph databases and their applications.

Graph databases are designed to store and query data with complex relationships.
They use nodes to represent entities and edges to represent relationships between them.

PostgreSQL with extensions like ltree and pgvector can be used to build powerful graph-based systems.
The ltree extension provides hierarchical tree structures, while pgvector enables vector similarity search.

Combining these features allows for hybrid retrieval strategies that leverage both semantic similarity
and graph structure for more sophisticated information retrieval.`

const sampleContent2 = `Machine learning is transforming how we process and retrieve information.

Vector embeddings capture semantic meaning of text, enabling similarity-based search.
Neural networks can learn representations that understand context and relationships.

Modern retrieval systems combine traditional database indexing with machine learning models
to provide more intelligent and context-aware search capabilities.`

func main() {
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "user",
		Password: "password",
		DBName:   "database",
		SSLMode:  "disable",
	}

	g, err := grapher.NewGrapher(dbConfig)
	if err != nil {
		log.Fatalf("Failed to create grapher: %v", err)
	}
	defer g.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: "http://localhost:11434", Model: "llama3"})
	storagePath, err := os.MkdirTemp("", "corpusqa-advanced-*")
	if err != nil {
		log.Fatalf("Failed to create storage directory: %v", err)
	}
	if err := g.UseDefaultPipeline(storagePath, 384, llm); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()

	doc1 := &model.Document{
		Title:   "Introduction to Graph Databases",
		Source:  "advanced_example_1",
		Content: sampleContent1,
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "graph databases",
		},
	}
	doc2 := &model.Document{
		Title:   "Machine Learning for Information Retrieval",
		Source:  "advanced_example_2",
		Content: sampleContent2,
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "machine learning",
		},
	}

	fmt.Println("=== Ingesting Documents ===")
	numChunks1, err := g.IngestDocument(ctx, doc1)
	if err != nil {
		log.Fatalf("Failed to ingest document 1: %v", err)
	}
	fmt.Printf("Document 1 '%s' (RID: %s): %d chunks\n", doc1.Title, doc1.RID, numChunks1)

	numChunks2, err := g.IngestDocument(ctx, doc2)
	if err != nil {
		log.Fatalf("Failed to ingest document 2: %v", err)
	}
	fmt.Printf("Document 2 '%s' (RID: %s): %d chunks\n", doc2.Title, doc2.RID, numChunks2)

	// 1. Unscoped retrieval across both documents.
	fmt.Println("\n=== 1. Retrieval Across All Documents ===")
	resp, err := g.Ask(ctx, "What are graph databases?", nil, nil, 2)
	if err != nil {
		log.Fatalf("Ask failed: %v", err)
	}
	printResponse("All Documents", resp)

	// 2. Document-scoped retrieval, restricted to doc1 by RID filter.
	fmt.Println("\n=== 2. Document-Scoped Retrieval ===")
	fmt.Println("Searching only within 'Introduction to Graph Databases'...")
	scopedResp, err := g.Ask(ctx, "What are graph databases?", nil, []uuid.UUID{doc1.RID}, 2)
	if err != nil {
		log.Fatalf("Scoped ask failed: %v", err)
	}
	printResponse("Document-Scoped", scopedResp)

	fmt.Println("\nSearching only within 'Machine Learning for Information Retrieval'...")
	mlResp, err := g.Ask(ctx, "How does machine learning help with search?", nil, []uuid.UUID{doc2.RID}, 2)
	if err != nil {
		log.Fatalf("ML scoped ask failed: %v", err)
	}
	printResponse("ML Document", mlResp)

	// 3. A short ambiguous question against a multi-document corpus routes to clarify.
	fmt.Println("\n=== 3. Ambiguous Short Question (routes to clarify) ===")
	clarifyResp, err := g.Ask(ctx, "revenue?", nil, nil, 2)
	if err != nil {
		log.Fatalf("Clarify ask failed: %v", err)
	}
	printResponse("Clarify", clarifyResp)

	fmt.Println("\n=== Advanced Example Completed Successfully! ===")
	fmt.Println("\nKey features demonstrated:")
	fmt.Println("- Multi-document ingestion")
	fmt.Println("- Hybrid retrieval with evaluation-driven retry")
	fmt.Println("- Document-scoped retrieval (filter by document RID)")
	fmt.Println("- Routing a short ambiguous question to clarification")
}

func printResponse(title string, resp *grapher.AskResponse) {
	fmt.Printf("\n%s:\n", title)
	fmt.Printf("  Strategy: %s\n", resp.Strategy)
	fmt.Printf("  Answer: %s\n", resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Printf("  Sources: %v\n", resp.Sources)
	}
	if resp.Evaluation != nil {
		fmt.Printf("  Evaluation: overall=%.2f (attempts=%d)\n", resp.Evaluation.Overall, resp.Attempts)
	}
}
