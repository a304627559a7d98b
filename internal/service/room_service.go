package service

import (
	"context"
	"fmt"

	"roombook/internal/domain"
	"roombook/internal/models"
	"roombook/internal/rooms"

	"github.com/rs/zerolog"
)

// RoomService answers room lookups from an in-memory directory kept in sync
// with the room table.
type RoomService struct {
	store     domain.RoomStore
	directory *rooms.Directory
	logger    *zerolog.Logger
}

func NewRoomService(store domain.RoomStore, aliases *rooms.AliasTable, logger *zerolog.Logger) *RoomService {
	return &RoomService{
		store:     store,
		directory: rooms.NewDirectory(aliases),
		logger:    logger,
	}
}

// Sync upserts the configured rooms and reloads the directory.
func (s *RoomService) Sync(ctx context.Context, list []*models.Room) error {
	if err := s.store.SyncRooms(ctx, list); err != nil {
		return fmt.Errorf("sync rooms: %w", err)
	}
	return s.Refresh(ctx)
}

// Refresh reloads the directory from the store.
func (s *RoomService) Refresh(ctx context.Context) error {
	list, err := s.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if err := s.directory.Load(list); err != nil {
		return err
	}
	s.logger.Info().Int("rooms", len(list)).Msg("Room directory loaded")
	return nil
}

func (s *RoomService) ListRooms(_ context.Context) []*models.Room {
	return s.directory.Rooms()
}

func (s *RoomService) ActiveRooms(_ context.Context) []*models.Room {
	return s.directory.ActiveRooms()
}

func (s *RoomService) GetRoom(_ context.Context, id int64) (*models.Room, error) {
	return s.directory.FindByID(id)
}

// ResolveRoom maps free-text input such as "Phòng họp 1" to a room.
func (s *RoomService) ResolveRoom(_ context.Context, name string) (*models.Room, error) {
	return s.directory.FindByName(name)
}
