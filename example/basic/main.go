package main

import (
	"context"
	"fmt"
	"log"
	"os"

	grapher "github.com/ragengine/corpusqa"
	"github.com/ragengine/corpusqa/core/llmclient"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
)

const sampleContent = `This is a sample document about graph databases.

Graph databases are designed to store and query data with complex relationships.
They use nodes to represent entities and edges to represent relationships between them.

PostgreSQL with extensions like ltree and pgvector can be used to build powerful graph-based systems.
The ltree extension provides hierarchical tree structures, while pgvector enables vector similarity search.

Combining these features allows for hybrid retrieval strategies that leverage both semantic similarity
and graph structure for more sophisticated information retrieval.`

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
	storagePath, err := os.MkdirTemp("", "corpusqa-basic-*")
	if err != nil {
		log.Fatalf("Failed to create storage directory: %v", err)
	}
	if err := g.UseDefaultPipeline(storagePath, 384, llm); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	doc := &model.Document{
		Title:   "Introduction to Graph Databases",
		Source:  "basic_example",
		Content: sampleContent,
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "graph databases",
		},
	}

	fmt.Println("Ingesting document...")
	ctx := context.Background()
	numChunks, err := g.IngestDocument(ctx, doc)
	if err != nil {
		log.Fatalf("Failed to ingest document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", numChunks)

	question := "What are graph databases?"
	fmt.Printf("\nAsking: %s\n", question)

	resp, err := g.Ask(ctx, question, nil, nil, 1)
	if err != nil {
		log.Fatalf("Failed to answer question: %v", err)
	}

	fmt.Printf("\nAnswer: %s\n", resp.Answer)
	fmt.Printf("Sources: %v\n", resp.Sources)
	if resp.Evaluation != nil {
		fmt.Printf("Evaluation: overall=%.2f quality=%.2f completeness=%.2f relevance=%.2f (attempts=%d)\n",
			resp.Evaluation.Overall, resp.Evaluation.Quality, resp.Evaluation.Completeness,
			resp.Evaluation.Relevance, resp.Attempts)
	}

	fmt.Println("\nBasic example completed successfully!")
}
