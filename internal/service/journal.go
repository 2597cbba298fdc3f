package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/haulpoint/shopbot-go/internal/model"
	"github.com/haulpoint/shopbot-go/internal/repository"
)

// JournalService records operational events. It is best-effort by contract: a
// nil repository makes it a no-op, and insert failures only log.
type JournalService struct {
	repo repository.JournalRepository
	now  func() time.Time
}

func NewJournalService(repo repository.JournalRepository) *JournalService {
	return &JournalService{
		repo: repo,
		now:  time.Now,
	}
}

func (s *JournalService) Record(ctx context.Context, kind model.JournalKind, conversationKey string, payload any) {
	if s == nil || s.repo == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("marshal journal payload failed")
		return
	}

	entry := model.JournalEntry{
		ID:              uuid.NewString(),
		Kind:            kind,
		ConversationKey: conversationKey,
		Payload:         data,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("journal insert failed")
	}
}
