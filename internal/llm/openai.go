package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client *openai.Client
	APIKey string
	Model  string
}

// NewOpenAIClient builds a client; an empty baseURL uses api.openai.com.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	return newOpenAIClient(apiKey, baseURL, model, defaultHTTPClient())
}

// defaultHTTPClient bounds the wait for response headers only, so a long
// streamed completion is never cut off mid-body. Callers cancel via ctx.
func defaultHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: t}
}

func newOpenAIClient(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = httpClient
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), APIKey: apiKey, Model: model}
}

func (c *OpenAIClient) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: stream,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, false))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices: %w", ErrEmptyResponse)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return answer, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		if c.APIKey == "" {
			errCh <- ErrMissingAPIKey
			return
		}
		stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, true))
		if err != nil {
			errCh <- fmt.Errorf("openai: open stream: %w", err)
			return
		}
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("openai: stream recv: %w", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			chunk := resp.Choices[0].Delta.Content
			if chunk == "" {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return out, errCh
}
