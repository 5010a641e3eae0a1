package knowledge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medicortex/medicortex/internal/knowledge"
)

// newArangoStub fakes the cursor API, capturing each query and serving a
// canned result list.
func newArangoStub(t *testing.T, result string, queries *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_db/clinical_ontology/_api/cursor" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode cursor request: %v", err)
		}
		*queries = append(*queries, req.Query)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result": ` + result + `, "error": false}`))
	}))
}

func TestArangoStore_NeighborsReadsRelationType(t *testing.T) {
	var queries []string
	srv := newArangoStub(t,
		`[{"key": "aspirin", "name": "Aspirin", "relation": "treats", "hop": 1}]`,
		&queries)
	defer srv.Close()

	store := knowledge.NewArangoStore(srv.URL, "clinical_ontology", "root", "pw")
	facts, err := store.Neighbors(context.Background(), "fever", 2, 20)
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}

	if len(queries) != 1 {
		t.Fatalf("got %d queries, want 1", len(queries))
	}
	// Ontology edges carry the relation under relation_type.
	if !strings.Contains(queries[0], "e.relation_type") {
		t.Errorf("traversal query does not project e.relation_type:\n%s", queries[0])
	}

	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}
	if facts[0].Relation != "treats" {
		t.Errorf("Relation = %q, want %q", facts[0].Relation, "treats")
	}
	if facts[0].Name != "Aspirin" || facts[0].Hop != 1 {
		t.Errorf("fact = %+v", facts[0])
	}
}

func TestArangoStore_ConceptByNameMiss(t *testing.T) {
	var queries []string
	srv := newArangoStub(t, `[]`, &queries)
	defer srv.Close()

	store := knowledge.NewArangoStore(srv.URL, "clinical_ontology", "root", "pw")
	concept, err := store.ConceptByName(context.Background(), "Unknownitis")
	if err != nil {
		t.Fatalf("ConceptByName() error = %v", err)
	}
	if concept != nil {
		t.Errorf("ConceptByName() = %+v, want nil on miss", concept)
	}
}
