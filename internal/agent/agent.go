// Package agent implements the A2A responder protocol: capability cards,
// envelope validation, and the bounded ReAct reasoning loop each
// specialized responder runs against the tool-augmented responder model.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	langtools "github.com/tmc/langchaingo/tools"

	"github.com/medicortex/medicortex/internal/llm"
	"github.com/medicortex/medicortex/pkg/models"
)

// DefaultMaxIterations bounds the reasoning loop for simple responders.
const DefaultMaxIterations = 3

// iterationLimitAnswer is returned when the loop exhausts its iterations
// without reaching a final answer. A soft failure, not an error.
const iterationLimitAnswer = "Agent reached max iterations without final answer."

// observationTraceLimit caps observation length in the reasoning trace.
const observationTraceLimit = 200

// Responder is one specialized agent: a card, a system prompt, a tool set,
// and a bounded reasoning loop over the responder model.
type Responder struct {
	name          string
	card          models.AgentCard
	gen           llm.Generator
	tools         map[string]langtools.Tool
	template      string
	maxIterations int
}

// New builds a responder. The prompt template is rendered once here; only
// the input and scratchpad vary per request.
func New(name, systemPrompt string, card models.AgentCard, gen llm.Generator, toolset []langtools.Tool, maxIterations int) *Responder {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	byName := make(map[string]langtools.Tool, len(toolset))
	descs := make([]string, 0, len(toolset))
	names := make([]string, 0, len(toolset))
	for _, t := range toolset {
		byName[t.Name()] = t
		descs = append(descs, fmt.Sprintf("%s: %s", t.Name(), t.Description()))
		names = append(names, "["+t.Name()+"]")
	}

	template := fmt.Sprintf(`You are the %s.
%s

IMPORTANT: You may receive a 'Conversation History' in your input. USE IT to maintain context (e.g., patient age, previous diagnosis).
Do not ask for information that has already been provided in the history.

TOOLS:
------
You have access to the following tools:

%s

To use a tool, please use the following format:

Thought: Do I need to use a tool? Yes
Action: the action to take, should be one of %s
Action Input: the input to the action
Observation: the result of the action

When you have a response to say to the Human, or if you do not need to use a tool, you MUST use the format:

Thought: Do I need to use a tool? No
Final Answer: [your response here]

Begin!

New input: %%s
%%s`, name, systemPrompt, strings.Join(descs, "\n"), strings.Join(names, ", "))

	return &Responder{
		name:          name,
		card:          card,
		gen:           gen,
		tools:         byName,
		template:      template,
		maxIterations: maxIterations,
	}
}

// Card returns the responder's capability card.
func (r *Responder) Card() models.AgentCard {
	return r.card
}

// Process validates the envelope and runs the reasoning loop. The response
// references the envelope's idempotency key; error is set only on payload
// validation failure or a generator failure the loop could not absorb.
func (r *Responder) Process(ctx context.Context, env *models.Envelope) *models.AgentResponse {
	log.Info().
		Str("agent", r.name).
		Str("envelope", env.IdempotencyKey).
		Str("sender", env.SenderID).
		Msg("received envelope")

	input := env.Input()
	if input == "" {
		return &models.AgentResponse{
			EnvelopeID: env.IdempotencyKey,
			Error:      "Validation Error: 'input' field missing in payload.",
			Timestamp:  time.Now().UTC(),
		}
	}

	output, thinking, usage, err := r.reason(ctx, input)
	if err != nil {
		log.Error().Err(err).Str("agent", r.name).Msg("reasoning loop failed")
		return &models.AgentResponse{
			EnvelopeID: env.IdempotencyKey,
			Thinking:   thinking,
			Usage:      usage,
			Error:      err.Error(),
			Timestamp:  time.Now().UTC(),
		}
	}
	return &models.AgentResponse{
		EnvelopeID: env.IdempotencyKey,
		Output:     output,
		Thinking:   thinking,
		Usage:      usage,
		Timestamp:  time.Now().UTC(),
	}
}

// reason runs the bounded ReAct loop: render prompt, call the model, parse
// the step, invoke tools, grow the scratchpad. Tool failures become
// observations and never abort the loop; only a model call failure does.
func (r *Responder) reason(ctx context.Context, input string) (string, []string, map[string]int, error) {
	var (
		scratchpad strings.Builder
		thinking   []string
	)
	usage := map[string]int{"iterations": 0, "llm_calls": 0, "tool_calls": 0}

	for i := 0; i < r.maxIterations; i++ {
		usage["iterations"] = i + 1

		prompt := fmt.Sprintf(r.template, input, scratchpad.String())
		log.Info().Str("agent", r.name).Int("step", i+1).Msg("thinking")

		response, err := r.gen.Generate(ctx, prompt, nil)
		if err != nil {
			return "", thinking, usage, fmt.Errorf("model call: %w", err)
		}
		usage["llm_calls"]++

		step := ParseStep(response)
		if step.Thought != "" {
			thinking = append(thinking, step.Thought)
		}

		switch step.Kind {
		case StepFinalAnswer, StepImplicitFinal:
			return step.Final, thinking, usage, nil

		case StepToolCall:
			usage["tool_calls"]++
			observation := r.invokeTool(ctx, step.Tool, step.ToolInput)
			thinking = append(thinking, "Observation: "+truncate(observation, observationTraceLimit))
			fmt.Fprintf(&scratchpad, "%s\nObservation: %s\n", response, observation)

		case StepUnparseable:
			fmt.Fprintf(&scratchpad, "%s\nObservation: Could not parse action. Review format.\n", response)
		}
	}
	return iterationLimitAnswer, thinking, usage, nil
}

// invokeTool looks up and runs a tool. An unknown name or a tool failure
// becomes an error observation the model can react to.
func (r *Responder) invokeTool(ctx context.Context, name, input string) string {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: Tool '%s' not found.", name)
	}
	log.Info().Str("agent", r.name).Str("tool", name).Msg("calling tool")
	out, err := tool.Call(ctx, input)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
