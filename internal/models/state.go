package models

// ChatKind tells private chats from groups.
type ChatKind int

const (
	ChatUnknown ChatKind = iota
	ChatPrivate
	ChatGroup
)

// Tag is the short log label of the chat kind.
func (k ChatKind) Tag() string {
	switch k {
	case ChatPrivate:
		return "PM"
	case ChatGroup:
		return "GR"
	}
	return "??"
}

// Incoming is an inbound chat message normalised by the transport.
type Incoming struct {
	ChatID          int64
	ChatKind        ChatKind
	MessageID       int
	SenderID        int64
	SenderUsername  string // without leading @
	SenderName      string
	Text            string
	ReplyToSenderID int64 // author of the replied-to message, 0 if none
}
