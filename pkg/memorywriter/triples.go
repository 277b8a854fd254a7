package memorywriter

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/sensei/pkg/llm"
	"github.com/papercomputeco/sensei/pkg/memory"
)

const triplePrompt = `Extract durable facts about the learner from this tutoring exchange as
graph triples. Use "learner" as the source when the fact is about the
learner. Relations are short snake_case verbs such as studies, prefers,
goal_is, lives_in, struggles_with.

Return ONLY a JSON array:
[{"source": "...", "relation": "...", "target": "..."}]

Return [] when there is no durable fact.

Learner: %s
Tutor: %s
`

type rawTriple struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// extractTriples asks the model for the exchange's facts. Incomplete triples
// are dropped.
func extractTriples(ctx context.Context, call llm.CallFunc, userMessage, agentMessage string) ([]memory.Triple, error) {
	out, err := call(ctx, fmt.Sprintf(triplePrompt, userMessage, agentMessage))
	if err != nil {
		return nil, fmt.Errorf("extracting triples: %w", err)
	}

	var raw []rawTriple
	if err := llm.DecodeJSON(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing triples: %w", err)
	}

	triples := make([]memory.Triple, 0, len(raw))
	for _, r := range raw {
		t := memory.Triple{
			Source:   strings.TrimSpace(r.Source),
			Relation: strings.ToLower(strings.Join(strings.Fields(r.Relation), "_")),
			Target:   strings.TrimSpace(r.Target),
		}
		if t.Source == "" || t.Relation == "" || t.Target == "" {
			continue
		}
		triples = append(triples, t)
	}
	if len(triples) == 0 {
		return nil, ErrNoTriples
	}
	return triples, nil
}
