package privacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Span is a detected personal-data region in the analyzed text.
// Start and End are character offsets into the text.
type Span struct {
	EntityType string `json:"entity_type"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// Recognizer detects personal-data spans in free text.
type Recognizer interface {
	Analyze(ctx context.Context, text string) ([]Span, error)
}

// entityCategories is the fixed set of categories the vault redacts.
var entityCategories = []string{"PERSON", "PHONE_NUMBER", "EMAIL_ADDRESS", "DATE_TIME"}

// HTTPRecognizer talks to a Presidio-style analyzer sidecar.
type HTTPRecognizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRecognizer creates a recognizer client for the given sidecar base URL.
func NewHTTPRecognizer(baseURL string) *HTTPRecognizer {
	return &HTTPRecognizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type analyzeRequest struct {
	Text     string   `json:"text"`
	Entities []string `json:"entities"`
	Language string   `json:"language"`
}

// Analyze posts the text to the sidecar and returns the detected spans.
func (r *HTTPRecognizer) Analyze(ctx context.Context, text string) ([]Span, error) {
	body, err := json.Marshal(analyzeRequest{
		Text:     text,
		Entities: entityCategories,
		Language: "en",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognizer returned %d: %s", resp.StatusCode, string(respBody))
	}

	var spans []Span
	if err := json.Unmarshal(respBody, &spans); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return spans, nil
}
