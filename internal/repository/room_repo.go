package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dulm-api/internal/domain"
)

// ErrRoomCodeTaken indica que el insert choco con la constraint de unicidad
// del codigo de sala; el llamador debe reintentar con otro codigo.
var ErrRoomCodeTaken = errors.New("room code already taken")

const pgUniqueViolation = "23505"

// RoomRepository define el contrato de persistencia para salas y membresias.
type RoomRepository interface {
	// CreateWithOwner inserta la sala y la membresia OWNER en una sola
	// transaccion.
	CreateWithOwner(ctx context.Context, room domain.Room, owner domain.RoomMember) error
	CodeExists(ctx context.Context, code string) (bool, error)
	GetByID(ctx context.Context, id string) (domain.Room, error)
	GetMember(ctx context.Context, roomID, userID string) (domain.RoomMember, error)
	// MarkLeft fija left_at solo si sigue en NULL; devuelve false si la
	// membresia ya habia salido.
	MarkLeft(ctx context.Context, roomID, userID string, leftAt time.Time) (bool, error)
}

// PgRoomRepository implementa RoomRepository usando pgxpool.
type PgRoomRepository struct {
	pool *pgxpool.Pool
}

func NewPgRoomRepository(pool *pgxpool.Pool) *PgRoomRepository {
	return &PgRoomRepository{pool: pool}
}

func (r *PgRoomRepository) CreateWithOwner(ctx context.Context, room domain.Room, owner domain.RoomMember) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertRoom = `
		INSERT INTO rooms (id, name, code, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, insertRoom,
		room.ID,
		room.Name,
		room.Code,
		room.OwnerID,
		room.CreatedAt,
	); err != nil {
		return mapRoomInsertError(err)
	}

	const insertMember = `
		INSERT INTO room_members (room_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insertMember,
		owner.RoomID,
		owner.UserID,
		string(owner.Role),
		owner.JoinedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func mapRoomInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "rooms_code_key" {
		return ErrRoomCodeTaken
	}
	return err
}

func (r *PgRoomRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, code).Scan(&exists)
	return exists, err
}

func (r *PgRoomRepository) GetByID(ctx context.Context, id string) (domain.Room, error) {
	const query = `
		SELECT id, name, code, owner_id, created_at
		FROM rooms
		WHERE id = $1
	`
	var room domain.Room
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Code,
		&room.OwnerID,
		&room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, err
	}
	return room, err
}

func (r *PgRoomRepository) GetMember(ctx context.Context, roomID, userID string) (domain.RoomMember, error) {
	const query = `
		SELECT room_id, user_id, role, joined_at, left_at
		FROM room_members
		WHERE room_id = $1 AND user_id = $2
	`
	var m domain.RoomMember
	err := r.pool.QueryRow(ctx, query, roomID, userID).Scan(
		&m.RoomID,
		&m.UserID,
		&m.Role,
		&m.JoinedAt,
		&m.LeftAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoomMember{}, err
	}
	return m, err
}

func (r *PgRoomRepository) MarkLeft(ctx context.Context, roomID, userID string, leftAt time.Time) (bool, error) {
	const query = `
		UPDATE room_members
		SET left_at = $3
		WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, roomID, userID, leftAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
