package domain

import "time"

// Purpose indica el flujo que puede consumir un codigo de verificacion.
type Purpose string

const (
	PurposeSignup        Purpose = "SIGNUP"
	PurposeResetPassword Purpose = "RESET_PASSWORD"
)

// ParsePurpose valida y normaliza un purpose recibido por la API.
func ParsePurpose(s string) (Purpose, bool) {
	switch Purpose(s) {
	case PurposeSignup:
		return PurposeSignup, true
	case PurposeResetPassword:
		return PurposeResetPassword, true
	default:
		return "", false
	}
}

// VerificationRecord es una entrada append-only del ledger de verificacion.
// La entrada autoritativa para consumo es siempre la mas reciente sin usar
// para (email, purpose).
type VerificationRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Purpose   Purpose   `json:"purpose"`
	Code      string    `json:"-"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired indica si el codigo ya no es consumible en el instante dado.
func (r VerificationRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
