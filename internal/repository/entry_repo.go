package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dreamscape/internal/domain"
)

// EntryRepository define el contrato de persistencia para entradas del diario.
// Todas las operaciones por id exigen ademas el username dueño de la entrada.
type EntryRepository interface {
	Create(ctx context.Context, entry domain.JournalEntry) error
	ListByUsername(ctx context.Context, username string) ([]domain.JournalEntry, error)
	Update(ctx context.Context, entry domain.JournalEntry) (domain.JournalEntry, bool, error)
	Delete(ctx context.Context, id, username string) (bool, error)
}

// PgEntryRepository implementa EntryRepository usando pgxpool.
type PgEntryRepository struct {
	pool *pgxpool.Pool
}

func NewPgEntryRepository(pool *pgxpool.Pool) *PgEntryRepository {
	return &PgEntryRepository{pool: pool}
}

func (r *PgEntryRepository) Create(ctx context.Context, entry domain.JournalEntry) error {
	const query = `
		INSERT INTO journal_entries (id, username, title, dream, tags, mood, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Username,
		entry.Title,
		entry.Dream,
		tags,
		entry.Mood,
		entry.Date,
	)
	return err
}

func (r *PgEntryRepository) ListByUsername(ctx context.Context, username string) ([]domain.JournalEntry, error) {
	const query = `
		SELECT id, username, title, dream, tags, mood, date
		FROM journal_entries
		WHERE username = $1
		ORDER BY date DESC
	`
	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(
			&e.ID,
			&e.Username,
			&e.Title,
			&e.Dream,
			&e.Tags,
			&e.Mood,
			&e.Date,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Update modifica una entrada propia y devuelve la version actualizada.
// El segundo valor es false si la entrada no existe o pertenece a otro usuario.
func (r *PgEntryRepository) Update(ctx context.Context, entry domain.JournalEntry) (domain.JournalEntry, bool, error) {
	const query = `
		UPDATE journal_entries
		SET title = $3, dream = $4, tags = $5, mood = $6
		WHERE id = $1 AND username = $2
		RETURNING id, username, title, dream, tags, mood, date
	`
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	var updated domain.JournalEntry
	err := r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.Username,
		entry.Title,
		entry.Dream,
		tags,
		entry.Mood,
	).Scan(
		&updated.ID,
		&updated.Username,
		&updated.Title,
		&updated.Dream,
		&updated.Tags,
		&updated.Mood,
		&updated.Date,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JournalEntry{}, false, nil
		}
		return domain.JournalEntry{}, false, err
	}
	return updated, true, nil
}

func (r *PgEntryRepository) Delete(ctx context.Context, id, username string) (bool, error) {
	const query = `DELETE FROM journal_entries WHERE id = $1 AND username = $2`
	tag, err := r.pool.Exec(ctx, query, id, username)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
