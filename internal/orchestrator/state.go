// Package orchestrator runs the six-stage query pipeline: redact, retrieve
// knowledge, route, dispatch, aggregate, restore. State flows through a
// per-request context whose list fields only ever grow; scalar fields are
// overwritten by the stage that owns them.
package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/medicortex/medicortex/pkg/models"
)

// requestState carries one query through the pipeline. A fresh value is
// built per request and never shared across requests.
type requestState struct {
	TraceID       string
	Input         string
	RedactedInput string
	PIIMapping    map[string]string

	// History holds prior conversation turns, already rendered as
	// "Role: content" lines.
	History []string

	// Append-only accumulators. Stages add entries, never rewrite them.
	Context  []string
	Thoughts []string
	Outputs  []string

	FinalOutput string
}

// newRequestState seeds the trace id from the active span when the request
// arrived through the traced HTTP surface, so pipeline logs correlate with
// the exported spans. Without a recorded span a fresh UUID is minted.
func newRequestState(ctx context.Context, input string, history []string) *requestState {
	traceID := uuid.NewString()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return &requestState{
		TraceID: traceID,
		Input:   input,
		History: history,
	}
}

// Result is what one pipeline run produces.
type Result struct {
	// TraceID identifies the run for log and span correlation.
	TraceID string
	// Response is the final restored answer.
	Response string
	// Thoughts is the full reasoning trace collected from every
	// dispatched responder, in dispatch order.
	Thoughts []string
	// TokensStreamed reports whether the aggregation stage delivered the
	// answer token by token through the sink. When false a streaming
	// caller must emit the response as a single event instead.
	TokensStreamed bool
}

// Sink receives stream events as the pipeline progresses. A nil Sink
// disables streaming entirely. Emit errors abort token delivery but never
// the pipeline itself.
type Sink func(event models.StreamEvent) error
