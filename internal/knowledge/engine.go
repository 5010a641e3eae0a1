package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/medicortex/medicortex/pkg/models"
)

const (
	// traversalDepth is the maximum hop distance explored from an anchor.
	traversalDepth = 2
	// traversalLimit caps the total edges returned per traversal.
	traversalLimit = 20
	// DefaultTopK is the number of ranked facts returned to callers.
	DefaultTopK = 10
)

// Engine resolves medical terms against the clinical ontology and ranks
// graph neighborhoods by embedding similarity. The concept/synonym maps and
// the embedding matrix are loaded once at startup and read-only afterwards,
// so concurrent requests need no synchronization.
type Engine struct {
	store    Store
	keyToIdx map[string]int
	synonyms map[string]string
	matrix   *Matrix
}

type assetMaps struct {
	KeyToIdx   map[string]int    `json:"key_to_idx"`
	SynonymMap map[string]string `json:"synonym_map"`
}

// NewEngine creates an engine over the given store, loading maps.json and
// vectors.npy from assetDir. Asset load failures degrade to empty maps and
// disabled ranking rather than failing startup.
func NewEngine(store Store, assetDir string) *Engine {
	e := &Engine{
		store:    store,
		keyToIdx: make(map[string]int),
		synonyms: make(map[string]string),
	}

	// The two assets are independent, load them concurrently.
	var g errgroup.Group
	g.Go(func() error {
		mapsPath := filepath.Join(assetDir, "maps.json")
		raw, err := os.ReadFile(mapsPath)
		if err != nil {
			log.Warn().Err(err).Str("path", mapsPath).Msg("concept maps unavailable, lookups degraded")
			return nil
		}
		var m assetMaps
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Warn().Err(err).Str("path", mapsPath).Msg("concept maps unreadable, lookups degraded")
			return nil
		}
		if m.KeyToIdx != nil {
			e.keyToIdx = m.KeyToIdx
		}
		if m.SynonymMap != nil {
			e.synonyms = m.SynonymMap
		}
		return nil
	})
	g.Go(func() error {
		vecPath := filepath.Join(assetDir, "vectors.npy")
		matrix, err := OpenMatrix(vecPath)
		if err != nil {
			log.Warn().Err(err).Str("path", vecPath).Msg("embedding matrix unavailable, ranking disabled")
			return nil
		}
		e.matrix = matrix
		return nil
	})
	g.Wait()

	if e.matrix != nil {
		log.Info().
			Int("rows", e.matrix.Rows()).
			Int("cols", e.matrix.Cols()).
			Int("concepts", len(e.keyToIdx)).
			Int("synonyms", len(e.synonyms)).
			Msg("🧠 knowledge engine loaded")
	}
	return e
}

// Close releases the embedding matrix mapping.
func (e *Engine) Close() error {
	if e.matrix != nil {
		return e.matrix.Close()
	}
	return nil
}

// ResolveEntity maps a free-text term to an ontology concept using three
// tiers, first match wins: synonym alias, exact name, then prefix match
// where the shortest matching name wins. Returns nil when no tier matches.
// Store failures degrade to a miss.
func (e *Engine) ResolveEntity(ctx context.Context, term string) *models.Concept {
	lower := strings.ToLower(strings.TrimSpace(term))
	if lower == "" {
		return nil
	}

	if key, ok := e.synonyms[lower]; ok {
		c, err := e.store.ConceptByKey(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("term", term).Msg("synonym lookup failed")
		} else if c != nil {
			return c
		}
	}

	c, err := e.store.ConceptByName(ctx, lower)
	if err != nil {
		log.Warn().Err(err).Str("term", term).Msg("exact name lookup failed")
	} else if c != nil {
		return c
	}

	matches, err := e.store.ConceptsByPrefix(ctx, lower, 1)
	if err != nil {
		log.Warn().Err(err).Str("term", term).Msg("prefix lookup failed")
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

// SearchAndReason resolves the anchor term, traverses its neighborhood up
// to two hops in both directions, and ranks the traversed facts by cosine
// similarity against the anchor's embedding row. Facts whose target is not
// indexed score 0.0. The sort is stable so ties keep traversal order. An
// unresolvable anchor or an isolate returns an empty list.
func (e *Engine) SearchAndReason(ctx context.Context, term string, topK int) []models.Fact {
	if topK <= 0 {
		topK = DefaultTopK
	}

	anchor := e.ResolveEntity(ctx, term)
	if anchor == nil {
		return nil
	}

	var anchorVec []float64
	if e.matrix != nil {
		if idx, ok := e.keyToIdx[anchor.Key]; ok {
			anchorVec = e.matrix.Row(idx)
		}
	}

	facts, err := e.store.Neighbors(ctx, anchor.Key, traversalDepth, traversalLimit)
	if err != nil {
		log.Warn().Err(err).Str("anchor", anchor.Key).Msg("graph traversal failed")
		return nil
	}
	if len(facts) == 0 {
		return nil
	}

	for i := range facts {
		facts[i].Score = 0.0
		if anchorVec == nil {
			continue
		}
		if idx, ok := e.keyToIdx[facts[i].Key]; ok {
			facts[i].Score = cosineSimilarity(anchorVec, e.matrix.Row(idx))
		}
	}

	sort.SliceStable(facts, func(i, j int) bool { return facts[i].Score > facts[j].Score })
	if len(facts) > topK {
		facts = facts[:topK]
	}
	return facts
}

// FormatFacts renders ranked facts as a bulleted context block for prompts.
func FormatFacts(facts []models.Fact) string {
	if len(facts) == 0 {
		return "No specific knowledge found in graph."
	}
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, fmt.Sprintf("- %s (%s, Hop: %d)", f.Name, f.Relation, f.Hop))
	}
	return strings.Join(lines, "\n")
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
