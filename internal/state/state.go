// internal/state/state.go
//
// Chat State Store: the single owner of all mutable per-chat game state.
//
// Responsibilities:
//   - Hold ChatConfig, used-word sets, and pending prompts keyed by chat id.
//   - All operations are idempotent; disable cascades to used words and the
//     pending prompt.
//   - Write-through durability: every mutating operation is followed by a
//     full-snapshot flush through the configured Persister. A flush failure
//     is reported through the error hook but never rolls back memory.
//   - Reserve provides the atomic test-and-add the selection engine commits
//     words with.
//
// Concurrency:
//   - An RWMutex guards the in-memory maps (concurrent reads allowed).
//   - A second mutex serializes snapshot flushes: the persisted form is one
//     shared record for all chats, rewritten whole on every mutation.
//   - Pending prompts are transient and never persisted; after a restart the
//     retry path reconstructs them from chat history.

package state

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/UltimatePolymath/word/internal/game"
)

// ChatConfig is the per-chat game configuration, created on enable and
// removed on disable. Strategy is fixed for the lifetime of the record.
type ChatConfig struct {
	ChatID      int64         `json:"chatId"`
	Alias       string        `json:"alias"` // 4-digit display alias, not unique-enforced
	DisplayName string        `json:"displayName"`
	Strategy    game.Strategy `json:"strategy"`
	EnabledAt   time.Time     `json:"enabledAt"`
}

// PendingPrompt is the most recently issued constraint for a chat, kept so a
// later rejection can be retried without re-parsing.
type PendingPrompt struct {
	StartLetter rune
	MinLength   int
}

// Snapshot is the persisted representation: one shared record for all chats,
// used-word sets serialized as lists.
type Snapshot struct {
	Chats     []ChatConfig       `json:"chats"`
	UsedWords map[int64][]string `json:"usedWords"`
}

// Persister loads the snapshot at startup and saves it after every mutation.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Store is the in-memory authority over per-chat state, with write-through
// persistence.
type Store struct {
	mu      sync.RWMutex
	chats   map[int64]ChatConfig
	used    map[int64]map[string]struct{}
	pending map[int64]PendingPrompt

	flushMu   sync.Mutex // serializes whole-record rewrites
	persister Persister

	// onFlushError receives persistence failures; memory has already
	// advanced when it fires (at-least-once durability, not atomic).
	onFlushError func(error)
}

// NewStore constructs a Store. onFlushError may be nil.
func NewStore(p Persister, onFlushError func(error)) *Store {
	if onFlushError == nil {
		onFlushError = func(error) {}
	}
	return &Store{
		chats:        make(map[int64]ChatConfig),
		used:         make(map[int64]map[string]struct{}),
		pending:      make(map[int64]PendingPrompt),
		persister:    p,
		onFlushError: onFlushError,
	}
}

// LoadInitial replaces in-memory state with the persisted snapshot.
// Called once at startup, before any handler runs.
func (s *Store) LoadInitial(ctx context.Context) error {
	snap, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[int64]ChatConfig, len(snap.Chats))
	s.used = make(map[int64]map[string]struct{}, len(snap.UsedWords))
	for _, c := range snap.Chats {
		s.chats[c.ChatID] = c
	}
	for id, list := range snap.UsedWords {
		set := make(map[string]struct{}, len(list))
		for _, w := range list {
			set[w] = struct{}{}
		}
		s.used[id] = set
	}
	return nil
}

// Enable creates the chat's config if absent and returns it. Calling Enable
// on an already-enabled chat is a no-op returning the existing record.
func (s *Store) Enable(ctx context.Context, chatID int64, displayName string, strat game.Strategy) ChatConfig {
	s.mu.Lock()
	if existing, ok := s.chats[chatID]; ok {
		s.mu.Unlock()
		return existing
	}
	cfg := ChatConfig{
		ChatID:      chatID,
		Alias:       newAlias(),
		DisplayName: displayName,
		Strategy:    strat,
		EnabledAt:   time.Now().UTC(),
	}
	s.chats[chatID] = cfg
	if _, ok := s.used[chatID]; !ok {
		s.used[chatID] = make(map[string]struct{})
	}
	s.mu.Unlock()
	s.flush(ctx)
	return cfg
}

// Disable removes the chat's config and cascades to its used words and
// pending prompt. Disabling an unknown chat is a no-op.
func (s *Store) Disable(ctx context.Context, chatID int64) {
	s.mu.Lock()
	_, existed := s.chats[chatID]
	delete(s.chats, chatID)
	delete(s.used, chatID)
	delete(s.pending, chatID)
	s.mu.Unlock()
	if existed {
		s.flush(ctx)
	}
}

// Get returns the chat's config, if enabled.
func (s *Store) Get(chatID int64) (ChatConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.chats[chatID]
	return cfg, ok
}

// List returns all enabled chats, ordered by chat id.
func (s *Store) List() []ChatConfig {
	s.mu.RLock()
	out := make([]ChatConfig, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// MarkUsed adds word (lowercased by the caller) to the chat's used set and
// reports whether it was newly added.
func (s *Store) MarkUsed(ctx context.Context, chatID int64, word string) bool {
	s.mu.Lock()
	set, ok := s.used[chatID]
	if !ok {
		set = make(map[string]struct{})
		s.used[chatID] = set
	}
	_, present := set[word]
	set[word] = struct{}{}
	s.mu.Unlock()
	if !present {
		s.flush(ctx)
	}
	return !present
}

// MarkAllUsed adds every word in the batch to the chat's used set with a
// single flush. Returns how many were newly added.
func (s *Store) MarkAllUsed(ctx context.Context, chatID int64, batch []string) int {
	s.mu.Lock()
	set, ok := s.used[chatID]
	if !ok {
		set = make(map[string]struct{})
		s.used[chatID] = set
	}
	added := 0
	for _, w := range batch {
		if _, present := set[w]; !present {
			set[w] = struct{}{}
			added++
		}
	}
	s.mu.Unlock()
	if added > 0 {
		s.flush(ctx)
	}
	return added
}

// Release removes a single word from the chat's used set. Used to roll back
// a reservation whose send never went out.
func (s *Store) Release(ctx context.Context, chatID int64, word string) {
	s.mu.Lock()
	set, ok := s.used[chatID]
	if ok {
		_, ok = set[word]
		delete(set, word)
	}
	s.mu.Unlock()
	if ok {
		s.flush(ctx)
	}
}

// IsUsed reports membership in the chat's used set (caller lowercases).
func (s *Store) IsUsed(chatID int64, word string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.used[chatID][word]
	return ok
}

// UsedWords returns the chat's used words as a sorted list.
func (s *Store) UsedWords(chatID int64) []string {
	s.mu.RLock()
	set := s.used[chatID]
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// UsedCount returns the size of the chat's used set.
func (s *Store) UsedCount(chatID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.used[chatID])
}

// ClearUsed empties the chat's used set.
func (s *Store) ClearUsed(ctx context.Context, chatID int64) {
	s.mu.Lock()
	_, ok := s.used[chatID]
	if ok {
		s.used[chatID] = make(map[string]struct{})
	}
	s.mu.Unlock()
	if ok {
		s.flush(ctx)
	}
}

// SetPending overwrites the chat's pending prompt. In-memory only.
func (s *Store) SetPending(chatID int64, p PendingPrompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[chatID] = p
}

// GetPending returns the chat's pending prompt, if any.
func (s *Store) GetPending(chatID int64) (PendingPrompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[chatID]
	return p, ok
}

// ClearPending drops the chat's pending prompt.
func (s *Store) ClearPending(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, chatID)
}

// Exclusions returns the selection engine's view of one chat's used set.
func (s *Store) Exclusions(ctx context.Context, chatID int64) game.Exclusions {
	return &chatExclusions{ctx: ctx, store: s, chatID: chatID}
}

// Snapshot builds the persisted form of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Chats:     make([]ChatConfig, 0, len(s.chats)),
		UsedWords: make(map[int64][]string, len(s.used)),
	}
	for _, c := range s.chats {
		snap.Chats = append(snap.Chats, c)
	}
	sort.Slice(snap.Chats, func(i, j int) bool { return snap.Chats[i].ChatID < snap.Chats[j].ChatID })
	for id, set := range s.used {
		list := make([]string, 0, len(set))
		for w := range set {
			list = append(list, w)
		}
		sort.Strings(list)
		snap.UsedWords[id] = list
	}
	return snap
}

// flush rewrites the whole persisted record. Memory is authoritative: a
// failed flush is reported and the mutation stands.
//
// The snapshot is captured while holding flushMu so a flush queued behind
// another can never write an older snapshot over a newer one.
func (s *Store) flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	snap := s.Snapshot()
	if err := s.persister.Save(ctx, snap); err != nil {
		s.onFlushError(err)
	}
}

// chatExclusions adapts one chat's used set to game.Exclusions.
type chatExclusions struct {
	ctx    context.Context
	store  *Store
	chatID int64
}

func (e *chatExclusions) Contains(word string) bool {
	return e.store.IsUsed(e.chatID, word)
}

// Reserve is the atomic test-and-add closing the check/pick/commit race:
// it fails when the word was claimed since the engine's filter pass.
func (e *chatExclusions) Reserve(word string) bool {
	return e.store.MarkUsed(e.ctx, e.chatID, word)
}

// newAlias returns a 4-digit display alias. Purely cosmetic, collisions are
// acceptable.
func newAlias() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "0000"
	}
	return fmt.Sprintf("%04d", n.Int64())
}
