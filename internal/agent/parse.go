package agent

import (
	"regexp"
	"strings"
)

// StepKind tags the parse result of one raw model response.
type StepKind int

const (
	// StepFinalAnswer means the response carried a Final Answer marker.
	StepFinalAnswer StepKind = iota
	// StepToolCall means the response requested a tool invocation.
	StepToolCall
	// StepImplicitFinal means the response had no recognizable markers at
	// all and is treated as the final answer verbatim.
	StepImplicitFinal
	// StepUnparseable means markers were present but no usable action or
	// answer could be extracted; the loop continues with a format nudge.
	StepUnparseable
)

// Step is the tagged variant produced by parsing one model response.
type Step struct {
	Kind      StepKind
	Thought   string
	Tool      string
	ToolInput string
	Final     string
}

var (
	thoughtRe = regexp.MustCompile(`Thought:\s*(.+)`)
	actionRe  = regexp.MustCompile(`Action:\s*(.+)`)
	inputRe   = regexp.MustCompile(`Action Input:\s*(.+)`)
	finalRe   = regexp.MustCompile(`(?s)Final Answer:\s*(.+)`)
)

// ParseStep classifies a raw model response. Final Answer wins over an
// action when both appear. Tool names are stripped of enclosing brackets
// some models add around them.
func ParseStep(raw string) Step {
	step := Step{}
	if m := thoughtRe.FindStringSubmatch(raw); m != nil {
		step.Thought = strings.TrimSpace(m[1])
	}

	if m := finalRe.FindStringSubmatch(raw); m != nil {
		step.Kind = StepFinalAnswer
		step.Final = strings.TrimSpace(m[1])
		return step
	}

	action := actionRe.FindStringSubmatch(raw)
	input := inputRe.FindStringSubmatch(raw)
	if action != nil && input != nil {
		step.Kind = StepToolCall
		step.Tool = strings.Trim(strings.TrimSpace(action[1]), "[]")
		step.ToolInput = strings.TrimSpace(input[1])
		return step
	}

	if !strings.Contains(raw, "Thought:") && !strings.Contains(raw, "Action:") {
		step.Kind = StepImplicitFinal
		step.Final = strings.TrimSpace(raw)
		return step
	}

	step.Kind = StepUnparseable
	return step
}
