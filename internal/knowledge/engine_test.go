package knowledge_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/medicortex/medicortex/internal/knowledge"
	"github.com/medicortex/medicortex/pkg/models"
)

func newTestEngine(t *testing.T) (*knowledge.Engine, *knowledge.MemoryStore) {
	t.Helper()

	store := knowledge.NewMemoryStore()
	store.AddConcept("heart_attack", "Myocardial Infarction")
	store.AddConcept("aspirin", "Aspirin")
	store.AddConcept("aspartame", "Aspartame")
	store.AddConcept("chest_pain", "Chest Pain")
	store.AddRelation("heart_attack", "aspirin", "treated_by")
	store.AddRelation("heart_attack", "chest_pain", "has_symptom")

	dir := t.TempDir()
	mapsJSON := `{
		"key_to_idx": {"heart_attack": 0, "aspirin": 1, "chest_pain": 2},
		"synonym_map": {"mi": "heart_attack"}
	}`
	if err := os.WriteFile(filepath.Join(dir, "maps.json"), []byte(mapsJSON), 0o644); err != nil {
		t.Fatalf("write maps.json: %v", err)
	}
	writeNPY(t, filepath.Join(dir, "vectors.npy"), 3, 2, []float32{
		1.0, 0.0, // heart_attack
		0.2, 0.8, // aspirin
		0.9, 0.1, // chest_pain
	})

	e := knowledge.NewEngine(store, dir)
	t.Cleanup(func() { e.Close() })
	return e, store
}

func TestEngine_ResolveEntity_SynonymTier(t *testing.T) {
	e, _ := newTestEngine(t)

	c := e.ResolveEntity(context.Background(), "MI")
	if c == nil {
		t.Fatal("ResolveEntity(MI) = nil, want concept")
	}
	if c.Key != "heart_attack" {
		t.Errorf("concept key = %q, want %q", c.Key, "heart_attack")
	}
}

func TestEngine_ResolveEntity_ExactTier(t *testing.T) {
	e, _ := newTestEngine(t)

	c := e.ResolveEntity(context.Background(), "aspirin")
	if c == nil {
		t.Fatal("ResolveEntity(aspirin) = nil, want concept")
	}
	if c.Key != "aspirin" {
		t.Errorf("concept key = %q, want %q", c.Key, "aspirin")
	}
}

func TestEngine_ResolveEntity_PrefixShortestWins(t *testing.T) {
	e, _ := newTestEngine(t)

	// "asp" prefixes both Aspirin and Aspartame; the shorter name wins.
	c := e.ResolveEntity(context.Background(), "asp")
	if c == nil {
		t.Fatal("ResolveEntity(asp) = nil, want concept")
	}
	if c.Name != "Aspirin" {
		t.Errorf("concept name = %q, want %q", c.Name, "Aspirin")
	}
}

func TestEngine_ResolveEntity_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	if c := e.ResolveEntity(context.Background(), "zzz-unknown"); c != nil {
		t.Errorf("ResolveEntity(zzz-unknown) = %+v, want nil", c)
	}
	if c := e.ResolveEntity(context.Background(), ""); c != nil {
		t.Errorf("ResolveEntity(\"\") = %+v, want nil", c)
	}
}

func TestEngine_SearchAndReason_RanksBySimilarity(t *testing.T) {
	e, _ := newTestEngine(t)

	facts := e.SearchAndReason(context.Background(), "MI", 10)
	if len(facts) != 2 {
		t.Fatalf("SearchAndReason() returned %d facts, want 2", len(facts))
	}
	// chest_pain's vector is nearly parallel to heart_attack's, aspirin's
	// is nearly orthogonal, so chest_pain ranks first.
	if facts[0].Key != "chest_pain" {
		t.Errorf("facts[0].Key = %q, want %q", facts[0].Key, "chest_pain")
	}
	if facts[1].Key != "aspirin" {
		t.Errorf("facts[1].Key = %q, want %q", facts[1].Key, "aspirin")
	}
	if facts[0].Score <= facts[1].Score {
		t.Errorf("scores not descending: %f <= %f", facts[0].Score, facts[1].Score)
	}
	if facts[0].Hop != 1 {
		t.Errorf("facts[0].Hop = %d, want 1", facts[0].Hop)
	}
}

func TestEngine_SearchAndReason_UnresolvableAnchor(t *testing.T) {
	e, _ := newTestEngine(t)

	if facts := e.SearchAndReason(context.Background(), "no-such-term", 10); len(facts) != 0 {
		t.Errorf("SearchAndReason(no-such-term) returned %d facts, want 0", len(facts))
	}
}

func TestEngine_SearchAndReason_IsolateConcept(t *testing.T) {
	e, store := newTestEngine(t)
	store.AddConcept("orphan", "Orphan Concept")

	if facts := e.SearchAndReason(context.Background(), "Orphan Concept", 10); len(facts) != 0 {
		t.Errorf("isolate concept returned %d facts, want 0", len(facts))
	}
}

func TestEngine_SearchAndReason_TopKCap(t *testing.T) {
	e, _ := newTestEngine(t)

	facts := e.SearchAndReason(context.Background(), "MI", 1)
	if len(facts) != 1 {
		t.Fatalf("SearchAndReason(topK=1) returned %d facts, want 1", len(facts))
	}
	if facts[0].Key != "chest_pain" {
		t.Errorf("facts[0].Key = %q, want %q", facts[0].Key, "chest_pain")
	}
}

func TestEngine_DegradesWithoutAssets(t *testing.T) {
	store := knowledge.NewMemoryStore()
	store.AddConcept("flu", "Influenza")
	store.AddConcept("fever", "Fever")
	store.AddRelation("flu", "fever", "has_symptom")

	// Empty asset dir: no maps, no matrix. Lookups still work, ranking off.
	e := knowledge.NewEngine(store, t.TempDir())
	t.Cleanup(func() { e.Close() })

	c := e.ResolveEntity(context.Background(), "influenza")
	if c == nil {
		t.Fatal("ResolveEntity(influenza) = nil, want concept")
	}

	facts := e.SearchAndReason(context.Background(), "influenza", 10)
	if len(facts) != 1 {
		t.Fatalf("SearchAndReason() returned %d facts, want 1", len(facts))
	}
	if facts[0].Score != 0.0 {
		t.Errorf("unranked fact score = %f, want 0.0", facts[0].Score)
	}
}

func TestFormatFacts(t *testing.T) {
	facts := []models.Fact{
		{Name: "Chest Pain", Relation: "has_symptom", Hop: 1},
		{Name: "Aspirin", Relation: "treated_by", Hop: 2},
	}
	got := knowledge.FormatFacts(facts)
	want := "- Chest Pain (has_symptom, Hop: 1)\n- Aspirin (treated_by, Hop: 2)"
	if got != want {
		t.Errorf("FormatFacts() = %q, want %q", got, want)
	}
}

func TestFormatFacts_Empty(t *testing.T) {
	got := knowledge.FormatFacts(nil)
	want := "No specific knowledge found in graph."
	if got != want {
		t.Errorf("FormatFacts(nil) = %q, want %q", got, want)
	}
}
