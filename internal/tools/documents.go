package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	langtools "github.com/tmc/langchaingo/tools"

	"github.com/medicortex/medicortex/internal/llm"
)

// NewDocumentTextTool fetches a document by URL and returns its text.
// HTML is stripped to plain text; other content types pass through as-is.
func NewDocumentTextTool() langtools.Tool {
	client := &http.Client{Timeout: 20 * time.Second}
	return New(
		"extract_document_text",
		"Download a medical document or report by URL and return its plain-text content. Input is the document URL.",
		func(ctx context.Context, input string) (string, error) {
			u, err := url.Parse(strings.TrimSpace(input))
			if err != nil || u.Scheme == "" || u.Host == "" {
				return "", fmt.Errorf("invalid url: %q", input)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return "", fmt.Errorf("create request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("http request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("fetch returned %d for %s", resp.StatusCode, u.String())
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return "", fmt.Errorf("read response: %w", err)
			}

			if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
				return ExtractText(string(body)), nil
			}
			return strings.TrimSpace(string(body)), nil
		},
	)
}

// NewReportAnalysisTool interprets clinical report text with the responder
// model.
func NewReportAnalysisTool(gen llm.Generator) langtools.Tool {
	return New(
		"analyze_report",
		"Interpret the text of a clinical report or lab result. Input is the report text. Returns key findings, abnormal values, and their clinical significance.",
		func(ctx context.Context, input string) (string, error) {
			prompt := "You are a clinical report analyst. Summarize the key findings, " +
				"abnormal values, and clinical significance of the following report.\n\n" +
				"Report:\n" + input + "\n\nAnalysis:"
			return gen.Generate(ctx, prompt, nil)
		},
	)
}
