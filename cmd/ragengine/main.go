// Command ragengine is the CLI entry point for the retrieval-augmented
// question-answering service: it loads configuration, wires up a Grapher,
// and answers one question passed as arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	grapher "github.com/ragengine/corpusqa"
	"github.com/ragengine/corpusqa/config"
	"github.com/ragengine/corpusqa/core/llmclient"
	"github.com/ragengine/corpusqa/helper"
)

const (
	exitSuccess               = 0
	exitConfigError           = 2
	exitDependencyUnavailable = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ragengine", flag.ContinueOnError)
	docCount := fs.Int("documents", 1, "number of documents currently indexed, used for routing heuristics")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	question := strings.Join(fs.Args(), " ")
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: ragengine [-documents N] <question>")
		return exitConfigError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfigError
	}

	g, err := grapher.NewGrapher(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to graph store: %v\n", err)
		if helper.KindOf(err) == helper.KindDependencyUnavailable {
			return exitDependencyUnavailable
		}
		return exitDependencyUnavailable
	}
	defer g.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: cfg.LLMBaseURL, Model: cfg.LLMModel})
	if err := g.UseDefaultPipeline(cfg.StoragePath, cfg.EmbeddingDim, llm); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize pipeline: %v\n", err)
		return exitDependencyUnavailable
	}

	resp, err := g.Ask(context.Background(), question, nil, nil, *docCount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to answer question: %v\n", err)
		return exitDependencyUnavailable
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(resp.Sources, ", "))
	}
	return exitSuccess
}
