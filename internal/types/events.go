package types

import "time"

type EventType string

const (
	EventMessageCreated  EventType = "message.created"
	EventMessageEdited   EventType = "message.edited"
	EventMessageDeleted  EventType = "message.deleted"
	EventReactionChanged EventType = "reaction.changed"
	EventTypingStarted   EventType = "typing.started"
	EventTypingStopped   EventType = "typing.stopped"
)

// ChannelEvent is a single frame pushed to channel subscribers. Exactly
// one payload field is set, selected by Type.
type ChannelEvent struct {
	Type      EventType        `json:"type"`
	SpaceId   int              `json:"space_id"`
	Channel   string           `json:"channel"`
	Timestamp time.Time        `json:"timestamp"`
	Message   *Message         `json:"message,omitempty"`
	Deleted   *DeletedPayload  `json:"deleted,omitempty"`
	Reaction  *ReactionPayload `json:"reaction,omitempty"`
	Typing    *TypingPayload   `json:"typing,omitempty"`
}

type DeletedPayload struct {
	MessageId int64 `json:"message_id"`
}

type ReactionPayload struct {
	MessageId int64          `json:"message_id"`
	Emoji     string         `json:"emoji"`
	Reactions map[string]int `json:"reactions"`
}

type TypingPayload struct {
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Ref reconstructs the channel reference an event belongs to.
func (e *ChannelEvent) Ref() (ChannelRef, error) {
	return ParseChannelRef(e.SpaceId, e.Channel)
}
