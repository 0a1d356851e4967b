package service

import (
	"context"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/core/port"
)

type ChatService struct {
	repo    port.MessageRepository
	rooms   port.RoomTable
	gateway port.EventGateway
}

func NewChatService(repo port.MessageRepository, rooms port.RoomTable, gateway port.EventGateway) *ChatService {
	return &ChatService{
		repo:    repo,
		rooms:   rooms,
		gateway: gateway,
	}
}

func (s *ChatService) SendMessage(ctx context.Context, senderID domain.UserID, roomKey domain.RoomKey, content string) error {
	msg, err := domain.NewMessage(senderID, roomKey, content)
	if err != nil {
		return err
	}

	if err := s.repo.Save(ctx, *msg); err != nil {
		return err
	}

	members, ok := s.rooms.Members(roomKey)
	if !ok {
		return nil
	}
	return s.gateway.BroadcastMessage(ctx, members, *msg)
}
