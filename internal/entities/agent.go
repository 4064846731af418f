package entities

type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityBusy    Availability = "busy"
	AvailabilityOffline Availability = "offline"
)

// Agent is an operator record supplied by the external presence source.
// The engine only reads availability for the assignment guard.
type Agent struct {
	ID                      string       `json:"id"`
	Name                    string       `json:"name"`
	Availability            Availability `json:"availability"`
	ActiveConversationCount int          `json:"active_conversation_count"`
}
