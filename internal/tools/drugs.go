package tools

import (
	"context"

	langtools "github.com/tmc/langchaingo/tools"

	"github.com/medicortex/medicortex/internal/llm"
)

// NewDrugInteractionTool checks a drug combination with the responder model.
func NewDrugInteractionTool(gen llm.Generator) langtools.Tool {
	return New(
		"check_drug_interactions",
		"Check for interactions between drugs. Input is a comma-separated list of drug names. Returns known interactions, their severity, and monitoring advice.",
		func(ctx context.Context, input string) (string, error) {
			prompt := "You are a clinical pharmacology reference. List known interactions " +
				"between the following drugs, with severity and monitoring advice. " +
				"If none are known, say so.\n\nDrugs: " + input + "\n\nInteractions:"
			return gen.Generate(ctx, prompt, nil)
		},
	)
}

// NewDrugRecommendationTool suggests treatment options with the responder
// model.
func NewDrugRecommendationTool(gen llm.Generator) langtools.Tool {
	return New(
		"recommend_drugs",
		"Suggest first-line drug options for a condition. Input is the condition, optionally with patient context. Returns typical options with dosing considerations.",
		func(ctx context.Context, input string) (string, error) {
			prompt := "You are a clinical pharmacology reference. Suggest typical " +
				"first-line drug options for the following condition, with dosing " +
				"considerations and contraindications.\n\nCondition: " + input +
				"\n\nOptions:"
			return gen.Generate(ctx, prompt, nil)
		},
	)
}
