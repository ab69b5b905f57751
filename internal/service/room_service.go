package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"dulm-api/internal/domain"
	"dulm-api/internal/repository"
)

// roomCodeAttempts acota el loop de generacion. Con alfabeto 36 y largo 8
// una colision real es casi imposible; el limite existe como defensa, no
// como mecanismo principal de unicidad.
const roomCodeAttempts = 10

const maxRoomNameLength = 60

// RoomService aprovisiona salas con codigo corto unico y la membresia
// OWNER en una sola unidad atomica.
type RoomService struct {
	logger *zap.Logger
	rooms  repository.RoomRepository
	codes  ShortCodeGenerator
	now    func() time.Time
}

func NewRoomService(logger *zap.Logger, rooms repository.RoomRepository, codes ShortCodeGenerator) *RoomService {
	if codes == nil {
		codes = NewShortCodeGenerator(8)
	}
	return &RoomService{
		logger: logger,
		rooms:  rooms,
		codes:  codes,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoom genera un codigo libre y persiste sala + membresia OWNER.
// El pre-chequeo de existencia solo ahorra un round-trip: la unicidad real
// la impone la constraint de la base, y una violacion en el insert cuenta
// como colision y consume un intento mas.
func (s *RoomService) CreateRoom(ctx context.Context, ownerID, name string) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if len(name) > maxRoomNameLength {
		return domain.Room{}, newValidationError("name", "must be at most 60 characters")
	}

	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return domain.Room{}, err
		}

		exists, err := s.rooms.CodeExists(ctx, code)
		if err != nil {
			return domain.Room{}, err
		}
		if exists {
			continue
		}

		now := s.now()
		room := domain.Room{
			ID:        uuid.NewString(),
			Name:      name,
			Code:      code,
			OwnerID:   ownerID,
			CreatedAt: now,
		}
		owner := domain.RoomMember{
			RoomID:   room.ID,
			UserID:   ownerID,
			Role:     domain.RoleOwner,
			JoinedAt: now,
		}

		err = s.rooms.CreateWithOwner(ctx, room, owner)
		if errors.Is(err, repository.ErrRoomCodeTaken) {
			// Carrera entre el pre-chequeo y el insert.
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		return room, nil
	}

	// Agotarse con 36^8 codigos posibles implica aleatoriedad rota o un
	// espacio saturado: alarma operacional, no condicion de usuario.
	if s.logger != nil {
		s.logger.Error("room code space exhausted",
			zap.Int("attempts", roomCodeAttempts),
			zap.String("owner_id", ownerID),
		)
	}
	return domain.Room{}, ErrRoomCodesExhausted
}

// LeaveRoom fija left_at para la membresia (room, user). Es idempotente:
// salir dos veces no cambia nada y no es error.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	updated, err := s.rooms.MarkLeft(ctx, roomID, userID, s.now())
	if err != nil {
		return err
	}
	if updated {
		return nil
	}
	// 0 filas: o la membresia no existe, o ya habia salido.
	if _, err := s.rooms.GetMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMembershipNotFound
		}
		return err
	}
	return nil
}

// GetRoom devuelve la sala por id.
func (s *RoomService) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, ErrRoomNotFound
		}
		return domain.Room{}, err
	}
	return room, nil
}
