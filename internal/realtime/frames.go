package realtime

import (
	"encoding/json"
	"marketplace-api/internal/conversation"
	"marketplace-api/internal/storage"
	"time"
)

const (
	EventChatNew     = "chat:new"
	EventChatMessage = "chat:message"
	EventChatError   = "chat:error"
)

// Envelope wraps every frame exchanged over the socket
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type Message struct {
	ID   string          `json:"id"`
	Time time.Time       `json:"time"`
	Text string          `json:"text"`
	User storage.Profile `json:"user"`
}

// ChatMessage is sent to the recipient of a persisted chat
type ChatMessage struct {
	Message        Message         `json:"message"`
	From           storage.Profile `json:"from"`
	ConversationID string          `json:"conversationId"`
}

// ChatError is sent back to the sender of a chat that could not be persisted
// ID echoes the client side id of the rejected message
type ChatError struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	ID             string `json:"id,omitempty"`
}

func frame(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Publish delivers a persisted chat to every connection of its recipient
// It returns the number of connections reached, zero when the recipient is offline
func Publish(r Registry, conversationID string, a conversation.Appended) (int, error) {
	b, err := frame(EventChatMessage, ChatMessage{
		Message: Message{
			ID:   a.Chat.ID,
			Time: a.Chat.Timestamp,
			Text: a.Chat.Content,
			User: a.Sender,
		},
		From:           a.Sender,
		ConversationID: conversationID,
	})
	if err != nil {
		return 0, err
	}
	return r.Publish(a.Recipient, b), nil
}
