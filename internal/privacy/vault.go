package privacy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Vault redacts personal-data spans into numbered placeholder tokens and
// restores them after downstream processing. Each Redact call produces a
// fresh mapping; the mapping is never mutated between Redact and Restore.
type Vault struct {
	recognizer Recognizer
}

// NewVault creates a vault backed by the given recognizer. A nil recognizer
// disables redaction: text passes through unchanged with an empty mapping.
func NewVault(recognizer Recognizer) *Vault {
	return &Vault{recognizer: recognizer}
}

// Redact replaces detected personal-data spans with placeholder tokens of
// the form <TYPE_N>. Spans are applied in descending start-offset order so
// that earlier offsets stay valid while later text is rewritten; per-type
// counters start at 1 and follow that same processing order. Empty input
// returns immediately without calling the recognizer. A recognizer failure
// degrades to the unredacted text rather than failing the request.
func (v *Vault) Redact(ctx context.Context, text string) (string, map[string]string) {
	mapping := make(map[string]string)
	if text == "" || v.recognizer == nil {
		return text, mapping
	}

	spans, err := v.recognizer.Analyze(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("entity recognizer unavailable, skipping redaction")
		return text, mapping
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })

	runes := []rune(text)
	counters := make(map[string]int)
	for _, s := range spans {
		if s.Start < 0 || s.End > len(runes) || s.Start >= s.End {
			continue
		}
		counters[s.EntityType]++
		placeholder := fmt.Sprintf("<%s_%d>", s.EntityType, counters[s.EntityType])
		mapping[placeholder] = string(runes[s.Start:s.End])
		runes = append(runes[:s.Start], append([]rune(placeholder), runes[s.End:]...)...)
	}
	return string(runes), mapping
}

// Restore replaces every occurrence of each placeholder token with its
// original value. Placeholder tokens never overlap one another, so the
// replacement order across pairs does not matter.
func (v *Vault) Restore(text string, mapping map[string]string) string {
	for placeholder, original := range mapping {
		text = strings.ReplaceAll(text, placeholder, original)
	}
	return text
}
