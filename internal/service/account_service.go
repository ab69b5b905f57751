package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dulm-api/internal/domain"
	"dulm-api/internal/repository"
)

const minPasswordLength = 8

// AccountService coordina el registro, login y reseteo de contrasena de
// cuentas, apoyandose en el ledger de verificacion como compuerta.
type AccountService struct {
	logger        *zap.Logger
	users         repository.UserRepository
	verifications *VerificationService
	now           func() time.Time
}

func NewAccountService(logger *zap.Logger, users repository.UserRepository, verifications *VerificationService) *AccountService {
	return &AccountService{
		logger:        logger,
		users:         users,
		verifications: verifications,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Register crea una cuenta nueva. Las precondiciones se chequean en orden y
// la primera que falla corta el flujo con un error acotado al campo:
// formato de username, email libre, username libre, verificacion SIGNUP
// consumida para ese email.
func (s *AccountService) Register(ctx context.Context, username, emailAddr, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)

	if !domain.ValidUsername(username) {
		return domain.User{}, newValidationError("username", "must be 3-15 characters: letters, digits or underscore")
	}
	if emailAddr == "" {
		return domain.User{}, newValidationError("email", "email is required")
	}
	if len(password) < minPasswordLength {
		return domain.User{}, newValidationError("password", "must be at least 8 characters")
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, newValidationError("email", "already in use")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return domain.User{}, newValidationError("username", "already in use")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	verified, err := s.verifications.HasCompletedPurpose(ctx, emailAddr, domain.PurposeSignup)
	if err != nil {
		return domain.User{}, err
	}
	if !verified {
		return domain.User{}, newValidationError("email", "verification required")
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Authenticate valida credenciales para login. Cualquier fallo devuelve
// ErrInvalidCredentials sin distinguir el campo, para no filtrar que
// usernames existen.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if !user.IsActive || user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ResetPassword resuelve el usuario por username, consume el codigo
// RESET_PASSWORD emitido a su email y reemplaza el hash de credencial.
func (s *AccountService) ResetPassword(ctx context.Context, username, code, newPassword string) error {
	username = strings.TrimSpace(username)
	newPassword = strings.TrimSpace(newPassword)
	if len(newPassword) < minPasswordLength {
		return newValidationError("newPassword", "must be at least 8 characters")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if _, err := s.verifications.Consume(ctx, user.Email, domain.PurposeResetPassword, code); err != nil {
		return err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hashBytes)); err != nil {
		// El codigo ya quedo consumido; el usuario debe pedir uno nuevo.
		if s.logger != nil {
			s.logger.Error("password update failed after code consumption",
				zap.Error(err),
				zap.String("user_id", user.ID),
			)
		}
		return err
	}
	return nil
}

// GetUser devuelve el usuario por id; para el endpoint /auth/me.
func (s *AccountService) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}
