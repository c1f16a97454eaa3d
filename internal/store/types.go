package store

import "time"

// ConversationType binds a conversation to its business context.
type ConversationType string

const (
	TypeLoan       ConversationType = "loan"
	TypeService    ConversationType = "service"
	TypeEvent      ConversationType = "event"
	TypeLocalGroup ConversationType = "local_group"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageLocation MessageType = "location"
	MessageSystem   MessageType = "system"
)

// Context is the business-domain payload attached to a conversation. A
// conversation carries exactly one context kind, matching its Type.
type Context interface {
	ConversationType() ConversationType
}

// LoanContext describes an item loan conversation.
type LoanContext struct {
	Item       string    `json:"item"`
	Duration   string    `json:"duration"`
	ReturnDate time.Time `json:"return_date"`
	Status     string    `json:"status"`
}

func (LoanContext) ConversationType() ConversationType { return TypeLoan }

// ServiceContext describes a service request conversation.
type ServiceContext struct {
	Description string `json:"description"`
	Location    string `json:"location"`
	Price       string `json:"price"`
}

func (ServiceContext) ConversationType() ConversationType { return TypeService }

// EventContext describes an event conversation.
type EventContext struct {
	Date             time.Time `json:"date"`
	Location         string    `json:"location"`
	Capacity         int       `json:"capacity"`
	ParticipantCount int       `json:"participant_count"`
}

func (EventContext) ConversationType() ConversationType { return TypeEvent }

// GroupContext describes a local group conversation.
type GroupContext struct {
	Neighborhood string `json:"neighborhood"`
	Topic        string `json:"topic"`
}

func (GroupContext) ConversationType() ConversationType { return TypeLocalGroup }

// Participant is a member of a conversation.
type Participant struct {
	ID          string
	DisplayName string
	Online      bool
}

// Conversation is a context-bound chat between exchange participants.
// UnreadCounts holds an entry for every current participant.
type Conversation struct {
	ID           string
	Type         ConversationType
	Title        string
	Participants []Participant
	Context      Context
	LastActivity time.Time
	UnreadCounts map[string]int
}

// Message is one entry in a conversation's log. ID is assigned by the server
// once confirmed; ClientID is generated locally and stays stable across
// reconciliation, serving as the deduplication key.
type Message struct {
	ID             string
	ClientID       string
	ConversationID string
	Content        string
	Type           MessageType
	SenderID       string // empty for system messages
	Timestamp      time.Time
	ReadBy         map[string]time.Time
	ReplyTo        string
	Pending        bool
}
