// Package agent talks to an OpenAI-compatible chat completions API
// for the retrieval-augmented chat flow.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"papers/types"

	"github.com/pkoukk/tiktoken-go"
)

const systemPrompt = `You are a research paper assistant. Answer the user's question using only the provided context. If the context does not contain the answer, say you could not find relevant information in the indexed papers. Do not invent citations.`

// Config holds the chat model settings, passed in from main rather
// than read from the environment at call sites.
type Config struct {
	URL    string
	APIKey string
	Model  string
	// MaxContextTokens caps how much retrieved text goes into the
	// prompt; chunks past the budget are dropped.
	MaxContextTokens int
}

type Agent struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Agent {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 3000
	}
	return &Agent{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// BuildContext renders retrieved chunks into the prompt context,
// stopping once the token budget is spent. Returns the context text
// and the chunks that actually made it in.
func (a *Agent) BuildContext(results []types.SearchResult) (string, []types.SearchResult) {
	enc, err := tiktoken.EncodingForModel("gpt-4o")
	if err != nil {
		enc = nil
	}

	var sb strings.Builder
	var used []types.SearchResult
	budget := a.cfg.MaxContextTokens

	for _, r := range results {
		block := fmt.Sprintf("Paper: %s\nContent: %s\n\n", r.Title, r.ChunkText)
		if enc != nil {
			cost := len(enc.Encode(block, nil, nil))
			if cost > budget {
				break
			}
			budget -= cost
		}
		sb.WriteString(block)
		used = append(used, r)
	}
	return sb.String(), used
}

// StreamAnswer streams the model's answer token deltas through emit.
// emit returning an error aborts the stream.
func (a *Agent) StreamAnswer(ctx context.Context, contextText, question string, emit func(string) error) error {
	if contextText == "" {
		contextText = "(no relevant context found)"
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context:\n%s\nQuestion: %s", contextText, question)},
		},
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Server-sent events: "data: {json}" lines, "data: [DONE]" at the end.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := emit(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
