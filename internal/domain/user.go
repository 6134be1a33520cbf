package domain

import "time"

// User representa una cuenta, desde el registro parcial hasta la cuenta completa.
// Username y PasswordHash quedan vacios hasta completar el registro.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username,omitempty"`
	PasswordHash     string     `json:"-"`
	VerificationCode string     `json:"-"`
	Verified         bool       `json:"verified"`
	ResetToken       string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Registered indica si la cuenta ya completo el registro final.
func (u User) Registered() bool {
	return u.Username != "" && u.PasswordHash != ""
}

// PublicUser es la proyección de User que se expone en respuestas.
type PublicUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Public devuelve la proyección pública de la cuenta.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
	}
}
