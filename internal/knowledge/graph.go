package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/medicortex/medicortex/pkg/models"
)

// Store is the query surface the engine needs from the clinical ontology.
// Lookup misses return (nil, nil); errors are reserved for transport or
// query failures.
type Store interface {
	// ConceptByKey fetches a concept by its document key.
	ConceptByKey(ctx context.Context, key string) (*models.Concept, error)
	// ConceptByName fetches a concept whose name matches case-insensitively.
	ConceptByName(ctx context.Context, name string) (*models.Concept, error)
	// ConceptsByPrefix returns concepts whose lowercase name starts with
	// prefix, ordered by ascending name length, capped at limit.
	ConceptsByPrefix(ctx context.Context, prefix string, limit int) ([]models.Concept, error)
	// Neighbors traverses relations from the given concept in both
	// directions up to maxHops, returning at most limit facts.
	Neighbors(ctx context.Context, key string, maxHops, limit int) ([]models.Fact, error)
}

// ══════════════════════════════════════════════════════════════════════
// ArangoDB store
// ══════════════════════════════════════════════════════════════════════

// ArangoStore queries the ontology through ArangoDB's HTTP cursor API.
type ArangoStore struct {
	baseURL  string
	database string
	user     string
	password string
	client   *http.Client
}

// NewArangoStore creates a store for the given ArangoDB endpoint and database.
func NewArangoStore(baseURL, database, user, password string) *ArangoStore {
	return &ArangoStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		database: database,
		user:     user,
		password: password,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type cursorRequest struct {
	Query    string                 `json:"query"`
	BindVars map[string]interface{} `json:"bindVars,omitempty"`
}

type cursorResponse struct {
	Result       json.RawMessage `json:"result"`
	Error        bool            `json:"error"`
	ErrorMessage string          `json:"errorMessage"`
}

// query executes an AQL query and unmarshals the cursor result into out.
func (s *ArangoStore) query(ctx context.Context, aql string, bindVars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(cursorRequest{Query: aql, BindVars: bindVars})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/_db/%s/_api/cursor", s.baseURL, s.database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.user, s.password)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("arangodb returned %d: %s", resp.StatusCode, string(respBody))
	}

	var cur cursorResponse
	if err := json.Unmarshal(respBody, &cur); err != nil {
		return fmt.Errorf("unmarshal cursor: %w", err)
	}
	if cur.Error {
		return fmt.Errorf("arangodb query error: %s", cur.ErrorMessage)
	}
	if err := json.Unmarshal(cur.Result, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func (s *ArangoStore) ConceptByKey(ctx context.Context, key string) (*models.Concept, error) {
	var result []models.Concept
	err := s.query(ctx, `
		FOR c IN concepts
			FILTER c._key == @key
			LIMIT 1
			RETURN { key: c._key, name: c.name }`,
		map[string]interface{}{"key": key}, &result)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

func (s *ArangoStore) ConceptByName(ctx context.Context, name string) (*models.Concept, error) {
	var result []models.Concept
	err := s.query(ctx, `
		FOR c IN concepts
			FILTER LOWER(c.name) == @name
			LIMIT 1
			RETURN { key: c._key, name: c.name }`,
		map[string]interface{}{"name": strings.ToLower(name)}, &result)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

func (s *ArangoStore) ConceptsByPrefix(ctx context.Context, prefix string, limit int) ([]models.Concept, error) {
	var result []models.Concept
	err := s.query(ctx, `
		FOR c IN concepts
			FILTER STARTS_WITH(LOWER(c.name), @prefix)
			SORT LENGTH(c.name) ASC
			LIMIT @limit
			RETURN { key: c._key, name: c.name }`,
		map[string]interface{}{"prefix": strings.ToLower(prefix), "limit": limit}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ArangoStore) Neighbors(ctx context.Context, key string, maxHops, limit int) ([]models.Fact, error) {
	var result []models.Fact
	err := s.query(ctx, `
		FOR v, e, p IN 1..@maxHops ANY @start concept_relations
			LIMIT @limit
			RETURN { key: v._key, name: v.name, relation: e.relation_type, hop: LENGTH(p.edges) }`,
		map[string]interface{}{
			"maxHops": maxHops,
			"start":   "concepts/" + key,
			"limit":   limit,
		}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════
// In-memory store
// ══════════════════════════════════════════════════════════════════════

// MemoryStore is an in-memory Store for tests and offline development.
type MemoryStore struct {
	mu       sync.RWMutex
	concepts map[string]models.Concept
	edges    map[string][]memoryEdge
}

type memoryEdge struct {
	to       string
	relation string
}

// NewMemoryStore creates an empty in-memory ontology.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		concepts: make(map[string]models.Concept),
		edges:    make(map[string][]memoryEdge),
	}
}

// AddConcept inserts a concept node.
func (s *MemoryStore) AddConcept(key, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concepts[key] = models.Concept{Key: key, Name: name}
}

// AddRelation inserts an undirected relation between two concepts.
func (s *MemoryStore) AddRelation(from, to, relation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[from] = append(s.edges[from], memoryEdge{to: to, relation: relation})
	s.edges[to] = append(s.edges[to], memoryEdge{to: from, relation: relation})
}

func (s *MemoryStore) ConceptByKey(ctx context.Context, key string) (*models.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.concepts[key]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) ConceptByName(ctx context.Context, name string) (*models.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lower := strings.ToLower(name)
	for _, c := range s.concepts {
		if strings.ToLower(c.Name) == lower {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ConceptsByPrefix(ctx context.Context, prefix string, limit int) ([]models.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lower := strings.ToLower(prefix)
	var matches []models.Concept
	for _, c := range s.concepts {
		if strings.HasPrefix(strings.ToLower(c.Name), lower) {
			matches = append(matches, c)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return len(matches[i].Name) < len(matches[j].Name)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryStore) Neighbors(ctx context.Context, key string, maxHops, limit int) ([]models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type frontier struct {
		key string
		hop int
	}
	visited := map[string]bool{key: true}
	queue := []frontier{{key: key, hop: 0}}
	var facts []models.Fact

	for len(queue) > 0 && len(facts) < limit {
		cur := queue[0]
		queue = queue[1:]
		if cur.hop >= maxHops {
			continue
		}
		for _, e := range s.edges[cur.key] {
			if visited[e.to] {
				continue
			}
			visited[e.to] = true
			target, ok := s.concepts[e.to]
			if !ok {
				continue
			}
			facts = append(facts, models.Fact{
				Key:      target.Key,
				Name:     target.Name,
				Relation: e.relation,
				Hop:      cur.hop + 1,
			})
			if len(facts) >= limit {
				break
			}
			queue = append(queue, frontier{key: e.to, hop: cur.hop + 1})
		}
	}
	return facts, nil
}
