package domain

import (
	"errors"
)

// Message is a chat message relayed on the same socket as call signaling.
type Message struct {
	ID       MessageID
	RoomKey  RoomKey
	SenderID UserID
	Content  string
}

func NewMessage(senderID UserID, roomKey RoomKey, content string) (*Message, error) {
	if content == "" {
		return nil, errors.New("message content cannot be empty")
	}
	return &Message{
		ID:       NewMessageID(),
		RoomKey:  roomKey,
		SenderID: senderID,
		Content:  content,
	}, nil
}
