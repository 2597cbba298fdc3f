package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haulpoint/shopbot-go/internal/kv"
	"github.com/haulpoint/shopbot-go/internal/model"
)

// DefaultStateTTL is how long an idle conversation keeps its flow state.
const DefaultStateTTL = 24 * time.Hour

// ConversationKey identifies one participant in one chat.
func ConversationKey(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

// StateStore persists per-conversation flow state with a sliding TTL and
// serializes access per conversation.
type StateStore struct {
	store kv.Store
	ttl   time.Duration
	locks *keyedMutex
}

func NewStateStore(store kv.Store, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		store: store,
		ttl:   ttl,
		locks: newKeyedMutex(),
	}
}

func stateKey(key string) string {
	return kv.Key("state", key)
}

// Lock takes the conversation's mutex and returns the unlock func. Every
// read-modify-write of flow state must happen under it.
func (s *StateStore) Lock(key string) func() {
	s.locks.lock(key)
	return func() { s.locks.unlock(key) }
}

// Get returns the conversation's flow state, or nil when none is stored. An
// undecodable entry is dropped and treated as absent.
func (s *StateStore) Get(ctx context.Context, key string) (*model.FlowState, error) {
	data, err := s.store.Get(ctx, stateKey(key))
	if err != nil {
		return nil, fmt.Errorf("get conversation state: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var st model.FlowState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("conversation", key).Msg("dropping undecodable conversation state")
		_ = s.store.Delete(ctx, stateKey(key))
		return nil, nil
	}
	return &st, nil
}

// Put stores the state and restarts its TTL.
func (s *StateStore) Put(ctx context.Context, key string, st *model.FlowState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}
	if err := s.store.Set(ctx, stateKey(key), data, s.ttl); err != nil {
		return fmt.Errorf("store conversation state: %w", err)
	}
	return nil
}

func (s *StateStore) Clear(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, stateKey(key)); err != nil {
		return fmt.Errorf("clear conversation state: %w", err)
	}
	return nil
}

// keyedMutex hands out one mutex per live key. Entries are reference counted
// and removed once the last holder releases, so the map stays bounded by the
// number of conversations currently being handled.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
	}
	k.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
