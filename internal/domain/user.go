package domain

import (
	"regexp"
	"time"
)

// usernameRegex: 3-15 caracteres, letras/numeros/guion bajo.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,15}$`)

// ValidUsername indica si el username cumple la regla de formato.
func ValidUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
}
