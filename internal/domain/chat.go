package domain

// EventKind is the shape of an inbound transport event.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventChoice
	EventText
)

// Event is the transport-agnostic inbound update consumed by the bot.
type Event struct {
	Kind EventKind

	// ChatID addresses the conversation the reply goes back to.
	ChatID     int64
	SenderID   int64
	SenderName string

	// Command and Argument are set for EventCommand ("/start send_x" -> "start", "send_x").
	Command  string
	Argument string

	// Data is the opaque payload of the pressed choice.
	Data string

	// Text is the free-text body for EventText.
	Text string

	// MessageID is the message carrying the pressed menu. When non-zero the
	// reply replaces that message instead of sending a new one.
	MessageID int
}

// Choice is one labeled option of a menu. Exactly one of Data or URL is set.
type Choice struct {
	Label string
	Data  string
	URL   string
}

// Prompt is a rendered reply: text plus an optional fixed menu, one row per slice.
type Prompt struct {
	Text    string
	Choices [][]Choice
}

// ReplyTarget tells the transport where a prompt goes.
type ReplyTarget struct {
	ChatID    int64
	MessageID int
}

// Target returns where replies to e should be written.
func (e Event) Target() ReplyTarget {
	return ReplyTarget{ChatID: e.ChatID, MessageID: e.MessageID}
}
