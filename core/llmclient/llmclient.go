// Package llmclient is a thin adapter over Ollama's native HTTP API
// (/api/generate and /api/chat). No provider SDK in the dependency pack
// targets this wire shape, so the client is a direct net/http +
// encoding/json implementation, following the same request/response
// struct + context-deadline idiom the rest of the codebase uses for its
// external calls.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ragengine/corpusqa/helper"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// DefaultPermits is the default number of concurrent in-flight calls allowed
// against the local model server.
const DefaultPermits = 4

// Message is one turn of a chat-style conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries generation parameters passed through to Ollama's
// options object.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Client calls Ollama's generate/chat endpoints, gating concurrency with a
// semaphore so a burst of requests doesn't saturate the local model server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	sem        *semaphore.Weighted
	genTimeout time.Duration
	timeout    time.Duration
}

// Config configures a new Client.
type Config struct {
	BaseURL string
	Model   string
	// Permits bounds concurrent in-flight calls; defaults to DefaultPermits.
	Permits int
	// Timeout bounds ordinary calls (chat); defaults to 60s.
	Timeout time.Duration
	// GenerateTimeout bounds generate calls, which can run longer; defaults to 120s.
	GenerateTimeout time.Duration
}

// New constructs a Client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	permits := cfg.Permits
	if permits <= 0 {
		permits = DefaultPermits
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	genTimeout := cfg.GenerateTimeout
	if genTimeout <= 0 {
		genTimeout = 120 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		model:      cfg.Model,
		httpClient: &http.Client{},
		sem:        semaphore.NewWeighted(int64(permits)),
		genTimeout: genTimeout,
		timeout:    timeout,
	}
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
}

// Generate calls POST /api/generate with a single prompt and returns the
// response text.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", helper.NewError("llmclient acquire permit", err)
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()

	var resp generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: opts,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Chat calls POST /api/chat with a list of messages and returns the
// assistant's reply content.
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", helper.NewError("llmclient acquire permit", err)
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp chatResponse
	err := c.post(ctx, "/api/chat", chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  opts,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return helper.NewError("llmclient marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return helper.NewError("llmclient build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return helper.NewErrorKind("llmclient http", helper.KindDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return helper.NewErrorKind("llmclient http", helper.KindDependencyUnavailable,
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return helper.NewError("llmclient decode response", err)
	}
	return nil
}
