package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	langtools "github.com/tmc/langchaingo/tools"

	"github.com/medicortex/medicortex/internal/agent"
	"github.com/medicortex/medicortex/internal/tools"
	"github.com/medicortex/medicortex/pkg/models"
)

// scriptedGen replays canned responses, repeating the last one when the
// script runs out.
type scriptedGen struct {
	responses []string
	err       error
	prompts   []string
}

func (g *scriptedGen) Generate(ctx context.Context, prompt string, stop []string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.prompts = append(g.prompts, prompt)
	i := len(g.prompts) - 1
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

func newEnvelope(t *testing.T, input string) *models.Envelope {
	t.Helper()
	payload := map[string]interface{}{}
	if input != "" {
		payload["input"] = input
	}
	return models.NewEnvelope("trace-1", "orchestrator", "test", payload)
}

func echoTool(name string, calls *[]string) langtools.Tool {
	return tools.New(name, "echoes input", func(ctx context.Context, input string) (string, error) {
		*calls = append(*calls, input)
		return "echo: " + input, nil
	})
}

func failingTool(name string) langtools.Tool {
	return tools.New(name, "always fails", func(ctx context.Context, input string) (string, error) {
		return "", errors.New("backend unavailable")
	})
}

func TestResponder_ValidatesMissingInput(t *testing.T) {
	gen := &scriptedGen{responses: []string{"Final Answer: unused"}}
	r := agent.New("test", "prompt", models.AgentCard{Name: "test"}, gen, nil, 3)

	resp := r.Process(context.Background(), newEnvelope(t, ""))
	if resp.Error != "Validation Error: 'input' field missing in payload." {
		t.Errorf("Error = %q", resp.Error)
	}
	if resp.Output != "" {
		t.Errorf("Output = %q, want empty", resp.Output)
	}
	if len(gen.prompts) != 0 {
		t.Errorf("model called %d times on validation failure, want 0", len(gen.prompts))
	}
}

func TestResponder_ToolCallThenFinalAnswer(t *testing.T) {
	var calls []string
	gen := &scriptedGen{responses: []string{
		"Thought: I should look this up.\nAction: [lookup]\nAction Input: migraine",
		"Thought: I have what I need.\nFinal Answer: Migraine is common.",
	}}
	r := agent.New("test", "prompt", models.AgentCard{Name: "test"},
		gen, []langtools.Tool{echoTool("lookup", &calls)}, 5)

	resp := r.Process(context.Background(), newEnvelope(t, "what is migraine"))
	if resp.Error != "" {
		t.Fatalf("Error = %q", resp.Error)
	}
	if resp.Output != "Migraine is common." {
		t.Errorf("Output = %q", resp.Output)
	}
	if len(calls) != 1 || calls[0] != "migraine" {
		t.Errorf("tool calls = %v", calls)
	}

	// The second prompt carries the scratchpad with the observation.
	if !strings.Contains(gen.prompts[1], "Observation: echo: migraine") {
		t.Errorf("scratchpad missing observation:\n%s", gen.prompts[1])
	}

	wantThinking := []string{
		"I should look this up.",
		"Observation: echo: migraine",
		"I have what I need.",
	}
	if len(resp.Thinking) != len(wantThinking) {
		t.Fatalf("Thinking = %v, want %v", resp.Thinking, wantThinking)
	}
	for i := range wantThinking {
		if resp.Thinking[i] != wantThinking[i] {
			t.Errorf("Thinking[%d] = %q, want %q", i, resp.Thinking[i], wantThinking[i])
		}
	}

	if resp.Usage["iterations"] != 2 || resp.Usage["llm_calls"] != 2 || resp.Usage["tool_calls"] != 1 {
		t.Errorf("Usage = %v", resp.Usage)
	}
}

func TestResponder_UnknownToolContinuesLoop(t *testing.T) {
	gen := &scriptedGen{responses: []string{
		"Thought: Trying a tool.\nAction: [no_such_tool]\nAction Input: x",
		"Final Answer: recovered",
	}}
	r := agent.New("test", "prompt", models.AgentCard{Name: "test"}, gen, nil, 5)

	resp := r.Process(context.Background(), newEnvelope(t, "hi"))
	if resp.Output != "recovered" {
		t.Errorf("Output = %q", resp.Output)
	}
	if !strings.Contains(gen.prompts[1], "Error: Tool 'no_such_tool' not found.") {
		t.Errorf("scratchpad missing synthetic error:\n%s", gen.prompts[1])
	}
}

func TestResponder_ToolErrorBecomesObservation(t *testing.T) {
	gen := &scriptedGen{responses: []string{
		"Thought: Trying.\nAction: [flaky]\nAction Input: x",
		"Final Answer: fell back",
	}}
	r := agent.New("test", "prompt", models.AgentCard{Name: "test"},
		gen, []langtools.Tool{failingTool("flaky")}, 5)

	resp := r.Process(context.Background(), newEnvelope(t, "hi"))
	if resp.Error != "" {
		t.Fatalf("tool failure should not set Error, got %q", resp.Error)
	}
	if resp.Output != "fell back" {
		t.Errorf("Output = %q", resp.Output)
	}
	if !strings.Contains(gen.prompts[1], "Observation: Error: backend unavailable") {
		t.Errorf("scratchpad missing error observation:\n%s", gen.prompts[1])
	}
}

func TestResponder_IterationLimit(t *testing.T) {
	var calls []string
	gen := &scriptedGen{responses: []string{
		"Thought: looping.\nAction: [lookup]\nAction Input: again",
	}}
	r := agent.New("test", "prompt", models.AgentCard{Name: "test"},
		gen, []langtools.Tool{echoTool("lookup", &calls)}, 3)

	resp := r.Process(context.Background(), newEnvelope(t, "hi"))
	if resp.Error != "" {
		t.Fatalf("iteration limit should be a soft failure, got error %q", resp.Error)
	}
	if resp.Output != "Agent reached max iterations without final answer." {
		t.Errorf("Output = %q", resp.Output)
	}
	if len(calls) != 3 {
		t.Errorf("tool calls = %d, want 3", len(calls))
	}
	if len(resp.Thinking) == 0 {
		t.Error("partial reasoning trace should be returned")
	}
	if resp.Usage["iterations"] != 3 {
		t.Errorf("Usage[iterations] = %d, want 3", resp.Usage["iterations"])
	}
}

func TestResponder_ImplicitFinalAnswer(t *testing.T) {
	gen := &scriptedGen{responses: []string{"Plain prose answer with no markers."}}
	r := agent.New("test", "prompt", models.AgentCard{Name: "test"}, gen, nil, 3)

	resp := r.Process(context.Background(), newEnvelope(t, "hi"))
	if resp.Output != "Plain prose answer with no markers." {
		t.Errorf("Output = %q", resp.Output)
	}
	if len(gen.prompts) != 1 {
		t.Errorf("model called %d times, want 1", len(gen.prompts))
	}
}

func TestResponder_GeneratorFailureSetsError(t *testing.T) {
	gen := &scriptedGen{err: errors.New("connection refused")}
	r := agent.New("test", "prompt", models.AgentCard{Name: "test"}, gen, nil, 3)

	resp := r.Process(context.Background(), newEnvelope(t, "hi"))
	if resp.Error == "" {
		t.Fatal("generator failure should set Error")
	}
	if resp.Output != "" {
		t.Errorf("Output = %q, want empty", resp.Output)
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := agent.NewDefaultRegistry(&scriptedGen{responses: []string{"Final Answer: ok"}})

	wantKeys := []string{"pubmed", "diagnosis", "report", "patient", "drug"}
	keys := reg.Keys()
	if len(keys) != len(wantKeys) {
		t.Fatalf("Keys() = %v, want %v", keys, wantKeys)
	}
	for i, k := range wantKeys {
		if keys[i] != k {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], k)
		}
	}

	card, ok := reg.Card("patient")
	if !ok {
		t.Fatal("Card(patient) missing")
	}
	if card.Name != "patient" {
		t.Errorf("card name = %q", card.Name)
	}
	if len(reg.Cards()) != 5 {
		t.Errorf("Cards() = %d entries, want 5", len(reg.Cards()))
	}

	if _, ok := reg.Get("missing"); ok {
		t.Error("Get(missing) should be false")
	}
}
