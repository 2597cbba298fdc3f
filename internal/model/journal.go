package model

import (
	"encoding/json"
	"time"
)

type JournalKind string

const (
	JournalShopAdded JournalKind = "shop_added"
	JournalSearchRun JournalKind = "search_run"
)

type JournalEntry struct {
	ID              string          `db:"id" json:"id"`
	Kind            JournalKind     `db:"kind" json:"kind"`
	ConversationKey string          `db:"conversation_key" json:"conversationKey"`
	Payload         json.RawMessage `db:"payload" json:"payload"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}
