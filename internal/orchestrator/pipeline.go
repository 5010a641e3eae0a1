package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/medicortex/medicortex/internal/agent"
	"github.com/medicortex/medicortex/internal/knowledge"
	"github.com/medicortex/medicortex/internal/llm"
	"github.com/medicortex/medicortex/internal/privacy"
	"github.com/medicortex/medicortex/internal/tools"
	"github.com/medicortex/medicortex/pkg/models"
)

// maxConcurrentAgents caps how many responders one request may fan out to.
const maxConcurrentAgents = 3

const extractorSystemPrompt = "You are a medical entity extractor. " +
	"Extract the SINGLE most important medical term (disease, symptom, or drug) to search in a knowledge graph. " +
	"Return the result as a JSON object with a single key 'entity'. " +
	"If multiple concepts exist, pick the most specific disease. " +
	"If nothing relevant is found, return null." +
	"\n\nExamples:\n" +
	"User: 'Tell me about Ebola outbreaks' -> {\"entity\": \"Ebola\"}\n" +
	"User: 'Symptoms of Heart Attack' -> {\"entity\": \"Heart Attack\"}\n" +
	"User: 'Patient has high fever' -> {\"entity\": \"Fever\"}"

const routerSystemPrompt = "You are the MediCortex Orchestrator. Analyze the user request and select the BEST specialized agents " +
	"to handle it. \n" +
	"Available Agents:\n" +
	"- 'pubmed': For medical research papers (PubMed database) AND medical articles from trusted websites " +
	"(Mayo Clinic, NIH, CDC, WHO, WebMD, Medscape, etc.). Use for any research, literature, or clinical guidance queries.\n" +
	"- 'diagnosis': For symptoms, possibilities, differential diagnosis. Uses symptom analysis AND web crawling " +
	"of trusted medical sites to suggest conditions and provide evidence-based reasoning.\n" +
	"- 'report': For lab results, medical reports (PDF extraction), and medical image analysis " +
	"(X-Rays, MRIs, CT scans via MedGemma vision). Handles both document and image-based reports.\n" +
	"- 'patient': For retrieving patient records, demographics, diagnoses, medications, and history analysis. " +
	"HIPAA-compliant with PII de-identification.\n" +
	"- 'drug': For medication interactions, contraindications, dosage guidelines, and drug recommendations. " +
	"Can also suggest alternative medications and check safety against patient conditions.\n\n" +
	"Return ONLY a JSON list of keys, e.g. ['pubmed', 'diagnosis']. If unsure, default to ['pubmed']."

const aggregatorPromptFormat = "You are the MediCortex Interface. Format the following medical agent reports into " +
	"a beautiful, human-readable Markdown response. \n" +
	"Use bolding, italics, bullet points, and headers to make it easy to read. " +
	"Do not change the factual content, just the presentation.\n\n" +
	"Raw Reports:\n%s"

// Pipeline wires the privacy vault, the knowledge engine, the routing
// model and the responder registry into one request path.
type Pipeline struct {
	vault    *privacy.Vault
	engine   *knowledge.Engine
	chat     llm.Completer
	registry *agent.Registry
}

// New assembles a pipeline. Every component is required; the vault and
// engine degrade internally when their backends are unreachable.
func New(vault *privacy.Vault, engine *knowledge.Engine, chat llm.Completer, registry *agent.Registry) *Pipeline {
	return &Pipeline{
		vault:    vault,
		engine:   engine,
		chat:     chat,
		registry: registry,
	}
}

// Run executes the full pipeline for one query. history carries prior
// turns as "Role: content" lines. sink, when non-nil, receives thought and
// token events as they happen.
func (p *Pipeline) Run(ctx context.Context, input string, history []string, sink Sink) (*Result, error) {
	state := newRequestState(ctx, input, history)
	logger := log.With().Str("trace_id", state.TraceID).Logger()

	logger.Info().Msg("stage: redact")
	p.redact(ctx, state)

	logger.Info().Msg("stage: retrieve knowledge")
	p.retrieveKnowledge(ctx, state)

	logger.Info().Msg("stage: route")
	routes := p.route(ctx, state)
	logger.Info().Strs("routes", routes).Msg("dispatching to responders")

	p.dispatch(ctx, state, routes, sink)

	logger.Info().Msg("stage: aggregate")
	tokensStreamed := p.aggregate(ctx, state, sink)

	state.FinalOutput = p.vault.Restore(state.FinalOutput, state.PIIMapping)

	return &Result{
		TraceID:        state.TraceID,
		Response:       state.FinalOutput,
		Thoughts:       state.Thoughts,
		TokensStreamed: tokensStreamed,
	}, nil
}

func (p *Pipeline) redact(ctx context.Context, state *requestState) {
	state.RedactedInput, state.PIIMapping = p.vault.Redact(ctx, state.Input)
}

func (p *Pipeline) retrieveKnowledge(ctx context.Context, state *requestState) {
	raw, err := p.chat.CompleteJSON(ctx, extractorSystemPrompt, state.RedactedInput)
	if err != nil {
		log.Error().Err(err).Msg("entity extraction failed")
		state.Context = append(state.Context, "Error retrieving knowledge.")
		return
	}

	var extracted struct {
		Entity string `json:"entity"`
	}
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		log.Error().Err(err).Msg("entity extraction returned malformed JSON")
		state.Context = append(state.Context, "Error retrieving knowledge.")
		return
	}

	term := strings.TrimSpace(extracted.Entity)
	if term == "" || strings.EqualFold(term, "none") {
		log.Info().Msg("no medical entity found to search")
		state.Context = append(state.Context, "No specific medical knowledge concept found in query.")
		return
	}

	log.Info().Str("term", term).Msg("extracted search term")
	facts := p.engine.SearchAndReason(ctx, term, knowledge.DefaultTopK)
	state.Context = append(state.Context, knowledge.FormatFacts(facts))
}

// route asks the model which responders should handle the request, then
// filters against the registry and caps the fan-out. Any failure falls
// back to the diagnosis responder.
func (p *Pipeline) route(ctx context.Context, state *requestState) []string {
	raw, err := p.chat.Complete(ctx, routerSystemPrompt, state.RedactedInput)
	if err != nil {
		log.Error().Err(err).Msg("routing failed, defaulting to diagnosis")
		return []string{"diagnosis"}
	}

	clean := stripFences(raw)
	// Models frequently emit Python-style single-quoted lists.
	clean = strings.ReplaceAll(clean, "'", `"`)

	var routes []string
	if err := json.Unmarshal([]byte(clean), &routes); err != nil {
		log.Warn().Str("reply", raw).Msg("router reply was not a list, defaulting to diagnosis")
		routes = []string{"diagnosis"}
	}

	valid := routes[:0]
	for _, r := range routes {
		if _, ok := p.registry.Get(r); ok {
			valid = append(valid, r)
		}
	}
	if len(valid) > maxConcurrentAgents {
		valid = valid[:maxConcurrentAgents]
	}
	if len(valid) == 0 {
		return []string{"diagnosis"}
	}
	return valid
}

// dispatchResult is one responder's contribution, tagged with its position
// in the route list so the merged output stays deterministic.
type dispatchResult struct {
	index    int
	thoughts []string
	outputs  []string
}

// dispatch fans the request out to every routed responder concurrently and
// merges their outputs in route order. A panicking responder is reported
// as a system error section instead of taking the request down.
func (p *Pipeline) dispatch(ctx context.Context, state *requestState, routes []string, sink Sink) {
	results := make(chan dispatchResult, len(routes))
	var wg sync.WaitGroup

	for i, key := range routes {
		wg.Add(1)
		go func(index int, key string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("agent", key).Interface("panic", r).Msg("responder panicked")
					results <- dispatchResult{
						index:    index,
						thoughts: []string{fmt.Sprintf("**[%s]**: System Error: %v", titleCase(key), r)},
						outputs:  []string{fmt.Sprintf("## %s Agent System Error\n%v", titleCase(key), r)},
					}
				}
			}()
			results <- p.invokeResponder(ctx, state, key, index)
		}(i, key)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]dispatchResult, 0, len(routes))
	seen := make(map[string]struct{})
	for res := range results {
		// Stream thoughts as each responder completes, suppressing
		// duplicates across responders.
		for _, t := range res.thoughts {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if sink != nil {
				if err := sink(models.StreamEvent{Type: models.EventThought, Content: t}); err != nil {
					sink = nil
				}
			}
		}
		collected = append(collected, res)
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })
	for _, res := range collected {
		state.Thoughts = append(state.Thoughts, res.thoughts...)
		state.Outputs = append(state.Outputs, res.outputs...)
	}
}

func (p *Pipeline) invokeResponder(ctx context.Context, state *requestState, key string, index int) dispatchResult {
	responder, ok := p.registry.Get(key)
	if !ok {
		return dispatchResult{
			index:   index,
			outputs: []string{fmt.Sprintf("Error: Agent '%s' not found.", key)},
		}
	}

	input := fmt.Sprintf(
		"Conversation History:\n%s\n\nCurrent Request: %s\n\nContext from Knowledge Core:\n%s",
		strings.Join(state.History, "\n"),
		state.RedactedInput,
		strings.Join(state.Context, "\n"),
	)

	payload := map[string]interface{}{"input": input}
	if key == "patient" {
		// The patient responder needs the placeholder mapping to resolve
		// identifiers without ever seeing the raw query.
		mappingJSON, err := json.Marshal(nonNilMapping(state.PIIMapping))
		if err == nil {
			payload["pii_mapping_json"] = string(mappingJSON)
			input += fmt.Sprintf("\n\nPII Mapping (for tool use only): %s", mappingJSON)
			payload["input"] = input
		}
		ctx = tools.WithPIIMapping(ctx, state.PIIMapping)
	}

	env := models.NewEnvelope(state.TraceID, "orchestrator", key, payload)
	resp := responder.Process(ctx, env)

	title := titleCase(key)
	thoughts := make([]string, 0, len(resp.Thinking))
	for _, t := range resp.Thinking {
		thoughts = append(thoughts, fmt.Sprintf("**[%s]**: %s", title, t))
	}

	if resp.Error != "" {
		log.Error().Str("agent", key).Str("error", resp.Error).Msg("responder returned error")
		return dispatchResult{
			index:    index,
			thoughts: thoughts,
			outputs:  []string{fmt.Sprintf("## %s Agent Error\n%s", title, resp.Error)},
		}
	}

	output := resp.Output
	if output == "" {
		output = "No output generated."
	}
	return dispatchResult{
		index:    index,
		thoughts: thoughts,
		outputs:  []string{fmt.Sprintf("## %s Agent Response\n%s", title, output)},
	}
}

// aggregate turns the raw report sections into one formatted Markdown
// answer. With a sink attached the formatter's tokens stream through it.
// If the model fails the raw concatenation is the answer.
func (p *Pipeline) aggregate(ctx context.Context, state *requestState, sink Sink) bool {
	raw := strings.Join(state.Outputs, "\n\n")
	prompt := fmt.Sprintf(aggregatorPromptFormat, raw)

	if sink == nil {
		formatted, err := p.chat.Complete(ctx, "", prompt)
		if err != nil {
			log.Error().Err(err).Msg("aggregation failed, returning raw reports")
			state.FinalOutput = raw
			return false
		}
		state.FinalOutput = formatted
		return false
	}

	tokensStreamed := false
	formatted, err := p.chat.Stream(ctx, "", prompt, func(token string) error {
		tokensStreamed = true
		return sink(models.StreamEvent{Type: models.EventToken, Content: token})
	})
	if err != nil {
		log.Error().Err(err).Msg("aggregation stream failed, returning raw reports")
		state.FinalOutput = raw
		return tokensStreamed
	}
	state.FinalOutput = formatted
	return tokensStreamed
}

func nonNilMapping(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// stripFences removes markdown code fences around a model reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
