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
	"dulm-api/internal/email"
	"dulm-api/internal/repository"
)

const (
	// DefaultCodeTTL es la vigencia de un codigo emitido.
	DefaultCodeTTL = 10 * time.Minute
	// DefaultCodeCooldown es el intervalo minimo entre emisiones para el
	// mismo (email, purpose).
	DefaultCodeCooldown = time.Minute
)

// VerificationService mantiene el ledger append-only de codigos de
// verificacion y sus reglas de ciclo de vida: cooldown de emision,
// expiracion y consumo de un solo uso.
type VerificationService struct {
	logger   *zap.Logger
	records  repository.VerificationRepository
	sender   email.Sender
	limiter  SendRateLimiter
	ttl      time.Duration
	cooldown time.Duration
	now      func() time.Time
}

func NewVerificationService(
	logger *zap.Logger,
	records repository.VerificationRepository,
	sender email.Sender,
	limiter SendRateLimiter,
	ttl, cooldown time.Duration,
) *VerificationService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if cooldown <= 0 {
		cooldown = DefaultCodeCooldown
	}
	return &VerificationService{
		logger:   logger,
		records:  records,
		sender:   sender,
		limiter:  limiter,
		ttl:      ttl,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock reemplaza la fuente de tiempo; pensado para tests de
// expiracion y cooldown.
func (s *VerificationService) WithClock(now func() time.Time) *VerificationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue crea un registro nuevo con codigo fresco y expiry = now+ttl.
// Nunca invalida registros previos sin consumir: el ledger es append-only
// y el consumo siempre resuelve contra el mas reciente.
func (s *VerificationService) Issue(ctx context.Context, emailAddr string, purpose domain.Purpose, ttl time.Duration) (domain.VerificationRecord, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.VerificationRecord{}, newValidationError("email", "email is required")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	code, err := NumericCode()
	if err != nil {
		return domain.VerificationRecord{}, err
	}

	now := s.now()
	rec := domain.VerificationRecord{
		ID:        uuid.NewString(),
		Email:     emailAddr,
		Purpose:   purpose,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return domain.VerificationRecord{}, err
	}
	return rec, nil
}

// CanIssue reporta si el cooldown para (email, purpose) ya vencio. Es una
// lectura previa al Issue, best-effort bajo concurrencia: una doble
// emision ocasional es inocua porque solo el ultimo registro sin usar es
// autoritativo.
func (s *VerificationService) CanIssue(ctx context.Context, emailAddr string, purpose domain.Purpose, cooldown time.Duration) (bool, error) {
	emailAddr = normalizeEmail(emailAddr)
	if cooldown <= 0 {
		cooldown = s.cooldown
	}
	recent, err := s.records.ExistsSince(ctx, emailAddr, purpose, s.now().Add(-cooldown))
	if err != nil {
		return false, err
	}
	return !recent, nil
}

// Send emite un codigo y lo envia por correo. El envio es fire-and-forget:
// si el transporte falla, el codigo ya esta persistido y sigue siendo
// valido; se devuelve delivered=false para que el caller pueda avisar.
func (s *VerificationService) Send(ctx context.Context, emailAddr string, purpose domain.Purpose) (bool, error) {
	emailAddr = normalizeEmail(emailAddr)
	if s.limiter != nil && !s.limiter.Allow(emailAddr+":"+string(purpose)) {
		return false, ErrRateLimited
	}

	ok, err := s.CanIssue(ctx, emailAddr, purpose, s.cooldown)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrRateLimited
	}

	rec, err := s.Issue(ctx, emailAddr, purpose, s.ttl)
	if err != nil {
		return false, err
	}

	if s.sender == nil {
		return false, nil
	}
	if err := s.sender.SendVerificationCode(ctx, emailAddr, rec.Code, rec.ExpiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send verification code failed",
				zap.Error(err),
				zap.String("email", emailAddr),
				zap.String("purpose", string(purpose)),
			)
		}
		return false, nil
	}
	return true, nil
}

// Consume resuelve el registro sin usar mas reciente para (email, purpose)
// y lo marca usado exactamente una vez. La expiracion se re-chequea en el
// momento del consumo, antes de comparar codigos: un registro vencido
// reporta expirado aunque el codigo suministrado tampoco coincida.
func (s *VerificationService) Consume(ctx context.Context, emailAddr string, purpose domain.Purpose, code string) (domain.VerificationRecord, error) {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)

	rec, err := s.records.LatestUnused(ctx, emailAddr, purpose)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VerificationRecord{}, ErrVerificationNotFound
		}
		return domain.VerificationRecord{}, err
	}

	if rec.Expired(s.now()) {
		return domain.VerificationRecord{}, ErrCodeExpired
	}
	// Comparacion exacta de strings: preserva ceros a la izquierda.
	if rec.Code != code {
		return domain.VerificationRecord{}, ErrCodeMismatch
	}

	used, err := s.records.MarkUsed(ctx, rec.ID)
	if err != nil {
		return domain.VerificationRecord{}, err
	}
	if !used {
		// Otro consumidor gano la carrera sobre el mismo registro.
		return domain.VerificationRecord{}, ErrVerificationNotFound
	}

	rec.Used = true
	return rec, nil
}

// HasCompletedPurpose reporta si existe al menos un registro consumido para
// (email, purpose). La evidencia de un consumo nunca caduca, aun cuando el
// TTL del codigo haya pasado hace tiempo.
func (s *VerificationService) HasCompletedPurpose(ctx context.Context, emailAddr string, purpose domain.Purpose) (bool, error) {
	return s.records.HasConsumed(ctx, normalizeEmail(emailAddr), purpose)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
