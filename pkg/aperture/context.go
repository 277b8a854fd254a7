package aperture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/resource"
	"github.com/papercomputeco/sensei/pkg/study"
)

// LearnerContext is the read-only snapshot assembled for one turn. Fields a
// branch could not supply are empty or nil.
type LearnerContext struct {
	Resources  []resource.Chunk     `json:"resources"`
	Memories   []memory.Snippet     `json:"memories"`
	StudyState *study.State         `json:"study_state"`
	Artifacts  []artifact.Reference `json:"artifacts"`
}

// Empty reports whether no branch contributed anything.
func (c LearnerContext) Empty() bool {
	return len(c.Resources) == 0 && len(c.Memories) == 0 && c.StudyState.Empty() && len(c.Artifacts) == 0
}

// Narrative renders the snapshot as system-prompt text. An empty context
// renders as "".
func (c LearnerContext) Narrative() string {
	var b strings.Builder

	if s := c.StudyState; !s.Empty() {
		b.WriteString("## Study progress\n")
		if p := s.Plan; p != nil {
			fmt.Fprintf(&b, "Target level: %s\nCurrent milestone: %s\nPlan health: %s\n",
				orUnknown(p.TargetLevel), orUnknown(p.CurrentMilestone), orUnknown(p.HealthStatus))
		}
		if t := s.Trends; t != nil {
			if len(t.IdentifiedStruggles) > 0 {
				fmt.Fprintf(&b, "Identified struggles: %s\n", strings.Join(t.IdentifiedStruggles, ", "))
			}
			if len(t.RecentMetrics) > 0 {
				parts := make([]string, len(t.RecentMetrics))
				for i, m := range t.RecentMetrics {
					parts[i] = m.Name + "=" + strconv.FormatFloat(m.Value, 'g', 4, 64)
				}
				fmt.Fprintf(&b, "Recent metrics: %s\n", strings.Join(parts, ", "))
			}
		}
		b.WriteString("\n")
	}

	if len(c.Memories) > 0 {
		b.WriteString("## What you remember about this learner\n")
		for _, m := range c.Memories {
			if m.Timestamp != nil {
				fmt.Fprintf(&b, "- (%s) %s\n", m.Timestamp.Format("2006-01-02"), m.Summary)
			} else {
				fmt.Fprintf(&b, "- %s\n", m.Summary)
			}
		}
		b.WriteString("\n")
	}

	if len(c.Resources) > 0 {
		b.WriteString("## Relevant study material\n")
		for _, r := range c.Resources {
			fmt.Fprintf(&b, "### %s\n%s\n\n", orUnknown(r.Title), r.Content)
		}
	}

	if len(c.Artifacts) > 0 {
		b.WriteString("## Recently created for this learner\n")
		for _, a := range c.Artifacts {
			fmt.Fprintf(&b, "- [%s] %s\n", a.Type, a.Title)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
