package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dreamscape/internal/domain"
)

// UserRepository define el contrato de persistencia para cuentas.
// Las operaciones Consume* son actualizaciones condicionales atomicas:
// devuelven false cuando ninguna fila cumplio la condicion.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	SetVerificationCode(ctx context.Context, id, code string) error
	ConsumeVerificationCode(ctx context.Context, email, code string) (bool, error)
	CompleteRegistration(ctx context.Context, id, username, passwordHash string) (bool, error)
	SetResetToken(ctx context.Context, id, token string, expiry time.Time) error
	ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (bool, error)
}

const userColumns = `id, email, username, password_hash, verification_code, verified, reset_token, reset_token_expiry, created_at, updated_at`

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, verification_code, verified, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.VerificationCode,
		user.Verified,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(ctx, query, username)
}

// SetVerificationCode sobreescribe el codigo pendiente de una cuenta no verificada.
func (r *PgUserRepository) SetVerificationCode(ctx context.Context, id, code string) error {
	const query = `
		UPDATE users
		SET verification_code = $2, updated_at = now()
		WHERE id = $1 AND verified = FALSE
	`
	_, err := r.pool.Exec(ctx, query, id, code)
	return err
}

// ConsumeVerificationCode marca la cuenta como verificada y limpia el codigo
// solo si el codigo presentado coincide exactamente con el almacenado.
func (r *PgUserRepository) ConsumeVerificationCode(ctx context.Context, email, code string) (bool, error) {
	const query = `
		UPDATE users
		SET verified = TRUE, verification_code = NULL, updated_at = now()
		WHERE email = $1 AND verified = FALSE AND verification_code = $2
	`
	tag, err := r.pool.Exec(ctx, query, email, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteRegistration asigna username y hash solo si la cuenta esta verificada
// y todavia no completo el registro.
func (r *PgUserRepository) CompleteRegistration(ctx context.Context, id, username, passwordHash string) (bool, error) {
	const query = `
		UPDATE users
		SET username = $2, password_hash = $3, updated_at = now()
		WHERE id = $1 AND verified = TRUE AND username IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, username, passwordHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgUserRepository) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	const query = `
		UPDATE users
		SET reset_token = $2, reset_token_expiry = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, token, expiry)
	return err
}

// ConsumeResetToken cambia el hash y limpia token + expiracion en una sola
// actualizacion; el token vencido o ya consumido no coincide con ninguna fila.
func (r *PgUserRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (bool, error) {
	const query = `
		UPDATE users
		SET password_hash = $2, reset_token = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE reset_token = $1 AND reset_token_expiry > $3
	`
	tag, err := r.pool.Exec(ctx, query, token, passwordHash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var (
		u        domain.User
		username sql.NullString
		passHash sql.NullString
		code     sql.NullString
		token    sql.NullString
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&username,
		&passHash,
		&code,
		&u.Verified,
		&token,
		&u.ResetTokenExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.Username = username.String
	u.PasswordHash = passHash.String
	u.VerificationCode = code.String
	u.ResetToken = token.String
	return u, nil
}
