package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dulm-api/internal/domain"
)

// VerificationRepository persiste el ledger append-only de codigos de
// verificacion. Los registros nunca se borran ni se reemplazan; la fila
// autoritativa es la mas reciente sin usar para (email, purpose).
type VerificationRepository interface {
	Create(ctx context.Context, rec domain.VerificationRecord) error
	LatestUnused(ctx context.Context, email string, purpose domain.Purpose) (domain.VerificationRecord, error)
	// MarkUsed consume el registro de forma exactamente-una-vez: devuelve
	// false si otra llamada concurrente ya lo marco como usado.
	MarkUsed(ctx context.Context, id string) (bool, error)
	ExistsSince(ctx context.Context, email string, purpose domain.Purpose, since time.Time) (bool, error)
	HasConsumed(ctx context.Context, email string, purpose domain.Purpose) (bool, error)
}

// PgVerificationRepository implementa VerificationRepository usando pgxpool.
type PgVerificationRepository struct {
	pool *pgxpool.Pool
}

func NewPgVerificationRepository(pool *pgxpool.Pool) *PgVerificationRepository {
	return &PgVerificationRepository{pool: pool}
}

func (r *PgVerificationRepository) Create(ctx context.Context, rec domain.VerificationRecord) error {
	const query = `
		INSERT INTO verification_records (id, email, purpose, code, used, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Email,
		string(rec.Purpose),
		rec.Code,
		rec.Used,
		rec.CreatedAt,
		rec.ExpiresAt,
	)
	return err
}

func (r *PgVerificationRepository) LatestUnused(ctx context.Context, email string, purpose domain.Purpose) (domain.VerificationRecord, error) {
	const query = `
		SELECT id, email, purpose, code, used, created_at, expires_at
		FROM verification_records
		WHERE email = $1 AND purpose = $2 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	var rec domain.VerificationRecord
	err := r.pool.QueryRow(ctx, query, email, string(purpose)).Scan(
		&rec.ID,
		&rec.Email,
		&rec.Purpose,
		&rec.Code,
		&rec.Used,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VerificationRecord{}, err
	}
	return rec, err
}

func (r *PgVerificationRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	// Update condicional: dos consumidores concurrentes sobre el mismo
	// registro producen exactamente un exito.
	const query = `
		UPDATE verification_records
		SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgVerificationRepository) ExistsSince(ctx context.Context, email string, purpose domain.Purpose, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM verification_records
			WHERE email = $1 AND purpose = $2 AND created_at >= $3
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, email, string(purpose), since).Scan(&exists)
	return exists, err
}

func (r *PgVerificationRepository) HasConsumed(ctx context.Context, email string, purpose domain.Purpose) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM verification_records
			WHERE email = $1 AND purpose = $2 AND used = TRUE
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, email, string(purpose)).Scan(&exists)
	return exists, err
}
