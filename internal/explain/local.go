package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalModel talks to an OpenAI-compatible chat completions endpoint,
// typically a small model served on the same machine. Nothing ever
// requires it to be present; callers always keep a templated fallback.
type LocalModel struct {
	baseURL          string
	model            string
	apiKey           string
	client           *http.Client
	maxResponseBytes int64
}

const defaultLocalModel = "tabguard-rephrase"

// NewLocalModel creates a client for a local rewording endpoint.
// baseURL is required; model, timeout and response cap get defaults.
func NewLocalModel(baseURL, model, apiKey string, timeout time.Duration, maxResponseBytes int64) *LocalModel {
	if model == "" {
		model = defaultLocalModel
	}
	if timeout <= 0 {
		timeout = DefaultParaphraseTimeout
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = 1 << 20
	}
	return &LocalModel{
		baseURL:          baseURL,
		model:            model,
		apiKey:           apiKey,
		maxResponseBytes: maxResponseBytes,
		client:           &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Paraphrase sends the prompt as a single user message and returns
// the first choice's content.
func (m *LocalModel) Paraphrase(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    m.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal rephrase request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create rephrase request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call rephrase endpoint: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, m.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read rephrase response: %w", err)
	}
	if int64(len(respBody)) > m.maxResponseBytes {
		return "", fmt.Errorf("rephrase response exceeded limit (%d bytes)", m.maxResponseBytes)
	}

	if resp.StatusCode >= 400 {
		var errBody chatErrorResponse
		if err := json.Unmarshal(respBody, &errBody); err != nil {
			return "", fmt.Errorf("rephrase endpoint status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("rephrase endpoint error: %s (type=%s)", errBody.Error.Message, errBody.Error.Type)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode rephrase response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("rephrase response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
