package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/haulpoint/shopbot-go/internal/model"
)

type JournalRepository interface {
	Insert(ctx context.Context, entry model.JournalEntry) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type journalRepo struct {
	db *sqlx.DB
}

func NewJournalRepository(db *sqlx.DB) JournalRepository {
	return &journalRepo{db: db}
}

func (r *journalRepo) Insert(ctx context.Context, entry model.JournalEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, kind, conversation_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.Kind, entry.ConversationKey, entry.Payload, entry.CreatedAt)
	return err
}

func (r *journalRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM journal_entries WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
