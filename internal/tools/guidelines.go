package tools

import (
	"context"

	langtools "github.com/tmc/langchaingo/tools"

	"github.com/medicortex/medicortex/internal/llm"
)

// NewGuidelinesTool consults clinical practice guidelines through the
// responder model.
func NewGuidelinesTool(gen llm.Generator) langtools.Tool {
	return New(
		"consult_medical_guidelines",
		"Consult clinical practice guidelines for a condition or symptom. Input is the condition or clinical question. Returns the relevant guideline summary.",
		func(ctx context.Context, input string) (string, error) {
			prompt := "You are a clinical guidelines reference. Summarize current " +
				"practice guidelines relevant to the following clinical question, " +
				"including diagnostic criteria and recommended workup.\n\n" +
				"Question: " + input + "\n\nGuideline summary:"
			return gen.Generate(ctx, prompt, nil)
		},
	)
}
