package entities

type RuleType string

const (
	RuleTypeAutomated RuleType = "automated"
	RuleTypeHuman     RuleType = "human"
)

// MatchPredicate is the structured condition a registry rule evaluates
// against a closed conversation's transcript. All set fields must hold
// for the predicate to match. Predicates are pure data so evaluation
// stays side-effect-free and replayable.
type MatchPredicate struct {
	// AnyKeywords matches when at least one keyword appears in the
	// transcript text (case-insensitive containment).
	AnyKeywords []string `json:"any_keywords,omitempty"`
	// AllKeywords requires every keyword to appear.
	AllKeywords []string `json:"all_keywords,omitempty"`

	// Annotation filters: match when any lead message carries one of
	// the listed signals.
	Emotions   []Emotion   `json:"emotions,omitempty"`
	Intents    []string    `json:"intents,omitempty"`
	Objections []Objection `json:"objections,omitempty"`

	// Voice-only bounds on call duration, read from the channel
	// session state.
	MinCallSeconds *int `json:"min_call_seconds,omitempty"`
	MaxCallSeconds *int `json:"max_call_seconds,omitempty"`
}

// RegistryRule maps a transcript condition to a disposition code.
// Rules are configuration data; their configured order is the tie-break
// (first match wins).
type RegistryRule struct {
	Code        string         `json:"code"`
	Description string         `json:"description"`
	Type        RuleType       `json:"type"`
	Predicate   MatchPredicate `json:"predicate"`
}
