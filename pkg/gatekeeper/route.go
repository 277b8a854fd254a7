package gatekeeper

// Destination is where a classified interaction is written.
type Destination int

const (
	// DestinationDiscard is never persisted long-term.
	DestinationDiscard Destination = iota

	// DestinationEpisodic is the vector-indexed episodic store.
	DestinationEpisodic

	// DestinationSemantic is the graph of durable learner facts.
	DestinationSemantic
)

func (d Destination) String() string {
	switch d {
	case DestinationEpisodic:
		return "episodic"
	case DestinationSemantic:
		return "semantic"
	default:
		return "discard"
	}
}

// factCategories describe stable relations between the learner and the
// world, which belong in the graph rather than as free text.
var factCategories = map[string]bool{
	"fact":         true,
	"preference":   true,
	"goal":         true,
	"relationship": true,
	"profile":      true,
}

// Route picks the long-term store for c. Session and none scopes are
// discarded.
func Route(c Classification) Destination {
	if !c.IsMemorable || c.Scope != ScopePermanent {
		return DestinationDiscard
	}
	if factCategories[c.Category] {
		return DestinationSemantic
	}
	return DestinationEpisodic
}
