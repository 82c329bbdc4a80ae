package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ServerOracle implements Oracle against OpenAI-compatible HTTP APIs.
// Works with llama-server, ollama, vllm, lmstudio, etc.
type ServerOracle struct {
	baseURL     string
	modelName   string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	apiPath     string
	maxRetries  int
}

// ServerOracleConfig configures the HTTP oracle client.
type ServerOracleConfig struct {
	BaseURL     string
	ModelName   string
	Temperature float64
	MaxTokens   int
	APIPath     string        // Optional, defaults to "/v1/chat/completions"
	Timeout     time.Duration // Optional, defaults to 2min
	MaxRetries  int           // Optional, defaults to 3
}

// NewServerOracle creates a new HTTP oracle client.
func NewServerOracle(cfg ServerOracleConfig) *ServerOracle {
	if cfg.APIPath == "" {
		cfg.APIPath = "/v1/chat/completions"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	return &ServerOracle{
		baseURL:     cfg.BaseURL,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		apiPath:     cfg.APIPath,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
	}
}

// Propose submits the directive and input and returns the oracle's single
// proposal. The directive is the system message; the conversation input is
// the user message.
func (c *ServerOracle) Propose(ctx context.Context, directive, input string) (*Proposal, error) {
	text, err := c.complete(ctx, directive, input)
	if err != nil {
		return nil, err
	}

	if call, ok := ParseToolCall(text); ok {
		return &Proposal{Call: call}, nil
	}
	if LooksLikeToolCall(text) {
		return &Proposal{Text: text, Malformed: true}, nil
	}
	return &Proposal{Text: text}, nil
}

func (c *ServerOracle) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": c.modelName,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
		"stream":      false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		// Must recreate the request on each retry since the body is consumed.
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+c.apiPath, bytes.NewReader(bodyBytes))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err = c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries && isRetryableError(err) && ctx.Err() == nil {
				backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
				select {
				case <-time.After(backoff):
					continue
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			return "", fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			break
		}

		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		// 5xx errors are retryable, 4xx are not.
		if resp.StatusCode >= 500 && attempt < c.maxRetries {
			lastErr = fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errorBody))
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errorBody))
	}

	if resp == nil {
		return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
	}
	defer resp.Body.Close()

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryableMessages := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
	}

	for _, msg := range retryableMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}

// Close closes idle connections held by the HTTP client.
func (c *ServerOracle) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
