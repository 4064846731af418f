package entities

import "time"

type Origin string

const (
	OriginLead      Origin = "lead"
	OriginAutomated Origin = "automated"
	OriginHuman     Origin = "human"
)

type Emotion string

const (
	EmotionPositive     Emotion = "positive"
	EmotionNegative     Emotion = "negative"
	EmotionInterested   Emotion = "interested"
	EmotionConfused     Emotion = "confused"
	EmotionHesitant     Emotion = "hesitant"
	EmotionEnthusiastic Emotion = "enthusiastic"
	EmotionNeutral      Emotion = "neutral"
)

type Objection string

const (
	ObjectionNone         Objection = "none"
	ObjectionPriceTooHigh Objection = "price_too_high"
	ObjectionNoTime       Objection = "no_time"
	ObjectionNeedsToThink Objection = "needs_to_think"
	ObjectionCompetitor   Objection = "competitor"
)

// IntentNone marks a lead message with no recognizable intent.
const IntentNone = "none"

// Annotation carries the behavioral signals derived from a lead message.
type Annotation struct {
	Emotion   Emotion   `json:"emotion"`
	Intent    string    `json:"intent"`
	Objection Objection `json:"objection"`
}

// NeutralAnnotation is the soft-failure default applied when annotation
// fails, times out, or is not configured.
func NeutralAnnotation() Annotation {
	return Annotation{Emotion: EmotionNeutral, Intent: IntentNone, Objection: ObjectionNone}
}

// Message is one utterance in a conversation, independent of channel.
// Content, origin and timestamp are immutable once appended; the
// annotation is attached later by message id.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Origin         Origin    `json:"origin"`

	// Set only when Origin is OriginLead.
	Annotation *Annotation `json:"annotation,omitempty"`

	// Set only on the synthetic "session closed" marker.
	DispositionCode        string `json:"disposition_code,omitempty"`
	DispositionDescription string `json:"disposition_description,omitempty"`
}

// Before reports whether m was uttered before other.
func (m Message) Before(other Message) bool {
	return m.Timestamp.Before(other.Timestamp)
}
