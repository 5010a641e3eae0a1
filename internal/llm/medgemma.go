package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generator is the text-in/text-out surface the responder reasoning loops
// depend on.
type Generator interface {
	// Generate returns the model's continuation of prompt, truncated at
	// the earliest occurrence of any stop sequence.
	Generate(ctx context.Context, prompt string, stop []string) (string, error)
}

// MedGemma calls a MedGemma-style /predict inference endpoint. The server
// has no native stop-sequence support, so truncation happens client-side.
type MedGemma struct {
	endpoint  string
	maxTokens int
	client    *http.Client
}

// NewMedGemma creates a client for the given /predict endpoint.
func NewMedGemma(endpoint string, maxTokens int, timeout time.Duration) *MedGemma {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MedGemma{
		endpoint:  endpoint,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Prompt      string  `json:"prompt"`
	ImageBase64 *string `json:"image_base64"`
	MaxTokens   int     `json:"max_tokens"`
}

type predictResponse struct {
	Response string `json:"response"`
}

func (m *MedGemma) Generate(ctx context.Context, prompt string, stop []string) (string, error) {
	body, err := json.Marshal(predictRequest{
		Prompt:    prompt,
		MaxTokens: m.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("predict endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result predictResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return truncateAtStop(result.Response, stop), nil
}

// truncateAtStop cuts text at the earliest occurrence of any stop sequence.
func truncateAtStop(text string, stop []string) string {
	cut := len(text)
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
