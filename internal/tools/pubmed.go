package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	langtools "github.com/tmc/langchaingo/tools"
)

const defaultEUtilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedClient searches NCBI PubMed through the E-utilities XML API.
type PubMedClient struct {
	baseURL string
	retMax  int
	client  *http.Client
}

// NewPubMedClient creates a client against the public E-utilities endpoint.
func NewPubMedClient() *PubMedClient {
	return &PubMedClient{
		baseURL: defaultEUtilsBase,
		retMax:  3,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL points the client at an alternate E-utilities endpoint.
func (c *PubMedClient) WithBaseURL(base string) *PubMedClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type eSearchResult struct {
	IDs []string `xml:"IdList>Id"`
}

type pubmedArticleSet struct {
	Articles []struct {
		Title    string   `xml:"MedlineCitation>Article>ArticleTitle"`
		Abstract []string `xml:"MedlineCitation>Article>Abstract>AbstractText"`
	} `xml:"PubmedArticle"`
}

// Search runs esearch then efetch and renders the top articles as a
// readable block of titles and abstracts.
func (c *PubMedClient) Search(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&retmax=%d&term=%s",
		c.baseURL, c.retMax, url.QueryEscape(query))

	var search eSearchResult
	if err := c.getXML(ctx, searchURL, &search); err != nil {
		return "", fmt.Errorf("pubmed search: %w", err)
	}
	if len(search.IDs) == 0 {
		return "No PubMed articles found for this query.", nil
	}

	fetchURL := fmt.Sprintf("%s/efetch.fcgi?db=pubmed&retmode=xml&id=%s",
		c.baseURL, strings.Join(search.IDs, ","))

	var set pubmedArticleSet
	if err := c.getXML(ctx, fetchURL, &set); err != nil {
		return "", fmt.Errorf("pubmed fetch: %w", err)
	}
	if len(set.Articles) == 0 {
		return "No PubMed articles found for this query.", nil
	}

	var sb strings.Builder
	for i, a := range set.Articles {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		abstract := strings.Join(a.Abstract, " ")
		if abstract == "" {
			abstract = "(no abstract available)"
		}
		fmt.Fprintf(&sb, "Title: %s\nAbstract: %s", a.Title, abstract)
	}
	return sb.String(), nil
}

func (c *PubMedClient) getXML(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("eutils returned %d: %s", resp.StatusCode, string(body))
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal xml: %w", err)
	}
	return nil
}

// NewPubMedSearchTool wraps the client as a reasoning-loop tool.
func NewPubMedSearchTool(client *PubMedClient) langtools.Tool {
	return New(
		"search_pubmed",
		"Search PubMed for peer-reviewed medical literature. Input is a plain-text search query. Returns titles and abstracts of the top matching articles.",
		func(ctx context.Context, input string) (string, error) {
			return client.Search(ctx, strings.TrimSpace(input))
		},
	)
}
