package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	langtools "github.com/tmc/langchaingo/tools"
)

// trustedMedicalHosts is the allowlist for the article crawler. Anything
// outside it is refused rather than fetched.
var trustedMedicalHosts = map[string]bool{
	"www.mayoclinic.org":  true,
	"medlineplus.gov":     true,
	"www.cdc.gov":         true,
	"www.who.int":         true,
	"www.nhs.uk":          true,
	"pubmed.ncbi.nlm.nih.gov": true,
}

const crawlMaxChars = 4000

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Crawler fetches pages from trusted medical sites and reduces them to
// plain text for the reasoning loop.
type Crawler struct {
	client *http.Client
}

// NewCrawler creates a crawler with a bounded request timeout.
func NewCrawler() *Crawler {
	return &Crawler{client: &http.Client{Timeout: 15 * time.Second}}
}

// Fetch downloads the page at rawURL and strips it to readable text.
// Hosts outside the trusted allowlist are rejected.
func (c *Crawler) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url: %q", rawURL)
	}
	if !trustedMedicalHosts[u.Host] {
		return "", fmt.Errorf("host %q is not on the trusted medical sites list", u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
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
	return ExtractText(string(body)), nil
}

// ExtractText crudely reduces HTML to whitespace-normalized text,
// truncated to a prompt-friendly length. Plain text passes through.
func ExtractText(raw string) string {
	text := scriptRe.ReplaceAllString(raw, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > crawlMaxChars {
		text = text[:crawlMaxChars] + "..."
	}
	return text
}

// NewCrawlerTool wraps the crawler as a reasoning-loop tool.
func NewCrawlerTool(crawler *Crawler) langtools.Tool {
	return New(
		"crawl_medical_articles",
		"Fetch an article from a trusted medical site (Mayo Clinic, MedlinePlus, CDC, WHO, NHS, PubMed) and return its text content. Input is the article URL.",
		func(ctx context.Context, input string) (string, error) {
			return crawler.Fetch(ctx, input)
		},
	)
}
