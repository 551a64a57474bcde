// internal/bot/bot.go
//
// Game loop: the per-chat state machine driving the word-chain play.
//
// Two logical states per chat:
//   - Idle: no outstanding submission.
//   - AwaitingReply: exactly one submitted word awaiting the opponent's
//     verdict.
//
// Transitions:
//   - prompt-shaped message  → select a word, send it, → AwaitingReply
//     (selection exhaustion keeps the chat Idle and alerts the operator).
//   - "accepted" verdict     → commit the word, → Idle.
//   - "rejected" verdict     → single fallback retry (retry.go); success
//     stays AwaitingReply for the retry's own verdict, failure → Idle.
//   - anything else          → every bare alphabetic token is marked used.
//
// Chats never share state; messages for one chat are handled in the order
// the transport delivered them.

package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/UltimatePolymath/word/internal/game"
	"github.com/UltimatePolymath/word/internal/parser"
	"github.com/UltimatePolymath/word/internal/state"
	"github.com/UltimatePolymath/word/internal/transport"
	"github.com/UltimatePolymath/word/internal/words"
)

// Config tunes loop behaviour. Zero values fall back to the defaults below.
type Config struct {
	// HistoryScanLimit bounds the recent-history scan used to reconstruct a
	// missing prompt during a retry.
	HistoryScanLimit int
	// ReplyDelay is the short wait before answering a prompt.
	ReplyDelay time.Duration
}

const (
	defaultHistoryScanLimit = 10
	defaultReplyDelay       = 2 * time.Second
)

// Bot wires the parser, engine, state store, and messenger into the loop.
type Bot struct {
	store    *state.Store
	engine   *game.Engine
	fallback *words.Dictionary
	msgr     transport.Messenger
	notify   *Notifier
	cfg      Config

	mu       sync.Mutex
	awaiting map[int64]string // chat id → last submitted word (lowercase)
}

// New constructs the game loop.
func New(store *state.Store, engine *game.Engine, fallback *words.Dictionary, msgr transport.Messenger, notify *Notifier, cfg Config) *Bot {
	if cfg.HistoryScanLimit <= 0 {
		cfg.HistoryScanLimit = defaultHistoryScanLimit
	}
	if cfg.ReplyDelay <= 0 {
		cfg.ReplyDelay = defaultReplyDelay
	}
	return &Bot{
		store:    store,
		engine:   engine,
		fallback: fallback,
		msgr:     msgr,
		notify:   notify,
		cfg:      cfg,
		awaiting: make(map[int64]string),
	}
}

// HandleMessage routes one inbound chat message through the state machine.
// Messages for chats the game is not enabled in are ignored.
func (b *Bot) HandleMessage(ctx context.Context, msg transport.Message) {
	cfg, enabled := b.store.Get(msg.ChatID)
	if !enabled {
		return
	}

	if p := parser.ParsePrompt(msg.Text); p != nil {
		b.handlePrompt(ctx, cfg, *p)
		return
	}
	if v := parser.ClassifyReply(msg.Text); v.Kind != parser.VerdictOther {
		b.handleVerdict(ctx, cfg, v)
		return
	}
	b.harvest(ctx, msg)
}

// handlePrompt records the constraint, selects a word under the chat's
// strategy, and submits it.
func (b *Bot) handlePrompt(ctx context.Context, cfg state.ChatConfig, p parser.Prompt) {
	chatID := cfg.ChatID
	b.store.SetPending(chatID, state.PendingPrompt{
		StartLetter: p.StartLetter,
		MinLength:   p.MinLength,
	})

	constraint := game.Constraint{StartLetter: p.StartLetter, MinLength: p.MinLength}
	pick, found := b.engine.Select(constraint, b.store.Exclusions(ctx, chatID), cfg.Strategy)
	if !found {
		b.setIdle(chatID)
		b.notify.Alert("chat %d (%s): selection exhausted for start=%c min=%d, no move sent",
			chatID, cfg.Alias, p.StartLetter, p.MinLength)
		return
	}

	b.submit(ctx, cfg, pick.Word)
}

// handleVerdict reacts to the opponent's judgement of the outstanding word.
func (b *Bot) handleVerdict(ctx context.Context, cfg state.ChatConfig, v parser.Verdict) {
	chatID := cfg.ChatID
	b.mu.Lock()
	submitted, awaiting := b.awaiting[chatID]
	b.mu.Unlock()

	// The awaiting entry does not survive a restart, so a verdict can arrive
	// with no outstanding submission on record. It is still acted on: the
	// opponent is judging the pre-restart submission, and the retry path
	// reconstructs the constraint from history when the prompt is gone too.
	word := v.Word
	if word == "" {
		word = submitted
	}
	if word == "" {
		return
	}
	if awaiting && word != submitted {
		log.Debug().Int64("chat", chatID).Str("verdict", word).Str("submitted", submitted).
			Msg("verdict names a different word than the outstanding submission")
	}

	switch v.Kind {
	case parser.VerdictAccepted:
		// The word was reserved at pick time; a fresh add here means that
		// commit went missing somewhere.
		if b.store.MarkUsed(ctx, chatID, word) {
			log.Warn().Int64("chat", chatID).Str("word", word).
				Msg("accepted word was not in the used set, re-committed")
		}
		b.store.ClearPending(chatID)
		b.setIdle(chatID)

	case parser.VerdictRejectedUnknown, parser.VerdictRejectedDuplicate:
		b.notify.Note("chat %d (%s): %q rejected (%s), retrying from fallback dictionary",
			chatID, cfg.Alias, word, rejectionLabel(v.Kind))
		if !b.retry(ctx, cfg) {
			b.setIdle(chatID)
		}
	}
}

// harvest marks every bare alphabetic token of an ordinary chat message as
// used. This also swallows words nobody ever played: any message containing
// "cat" permanently blocks "cat" in that chat. Kept to match the live
// system's behaviour. TODO: revisit once the duplicate-detection rules of
// the opponent bot are confirmed.
func (b *Bot) harvest(ctx context.Context, msg transport.Message) {
	tokens := parser.BareWords(msg.Text)
	if len(tokens) == 0 {
		return
	}
	if added := b.store.MarkAllUsed(ctx, msg.ChatID, tokens); added > 0 {
		log.Debug().Int64("chat", msg.ChatID).Int("words", added).Msg("harvested chat words")
	}
}

// submit waits the configured delay, sends the word, and moves the chat to
// AwaitingReply. The word is already reserved; if the send never goes out
// the reservation is rolled back so the word stays playable.
func (b *Bot) submit(ctx context.Context, cfg state.ChatConfig, display string) {
	chatID := cfg.ChatID
	lower := strings.ToLower(display)

	select {
	case <-time.After(b.cfg.ReplyDelay):
	case <-ctx.Done():
		b.store.Release(ctx, chatID, lower)
		b.setIdle(chatID)
		return
	}

	if _, err := b.msgr.Send(ctx, chatID, display); err != nil {
		b.store.Release(ctx, chatID, lower)
		b.setIdle(chatID)
		b.notify.Alert("chat %d (%s): send of %q failed: %v", chatID, cfg.Alias, display, err)
		return
	}

	b.mu.Lock()
	b.awaiting[chatID] = lower
	b.mu.Unlock()
	log.Info().Int64("chat", chatID).Str("word", display).Msg("word submitted")
}

// setIdle clears the chat's outstanding submission.
func (b *Bot) setIdle(chatID int64) {
	b.mu.Lock()
	delete(b.awaiting, chatID)
	b.mu.Unlock()
}

// Awaiting reports the chat's outstanding submission, if any.
func (b *Bot) Awaiting(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.awaiting[chatID]
	return w, ok
}

func rejectionLabel(k parser.VerdictKind) string {
	if k == parser.VerdictRejectedDuplicate {
		return "duplicate"
	}
	return "unknown word"
}
