// internal/bot/retry.go
//
// Retry controller: the single re-selection attempt made after the opponent
// rejects a submitted word. The fallback dictionary carries no frequency
// signal, so the replacement is the lexicographically first legal candidate,
// which keeps retries deterministic and reproducible.

package bot

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/UltimatePolymath/word/internal/game"
	"github.com/UltimatePolymath/word/internal/parser"
	"github.com/UltimatePolymath/word/internal/state"
)

// retry performs exactly one fallback attempt for the chat's active
// constraint. It reports whether a replacement went out; every failure path
// has already been narrated to the operator when it returns false.
func (b *Bot) retry(ctx context.Context, cfg state.ChatConfig) bool {
	chatID := cfg.ChatID

	prompt, ok := b.resolveConstraint(ctx, chatID)
	if !ok {
		b.notify.Alert("chat %d (%s): rejection with no recoverable prompt, giving up", chatID, cfg.Alias)
		return false
	}

	word, ok := b.pickFallback(ctx, chatID, prompt)
	if !ok {
		b.notify.Alert("chat %d (%s): fallback dictionary exhausted for start=%c min=%d",
			chatID, cfg.Alias, prompt.StartLetter, prompt.MinLength)
		return false
	}

	// Stale-constraint guard: never send a word shorter than the minimum,
	// whatever the filter said.
	if len(word) < prompt.MinLength {
		b.store.Release(ctx, chatID, word)
		b.notify.Alert("chat %d (%s): fallback pick %q shorter than min %d, constraint looks stale",
			chatID, cfg.Alias, word, prompt.MinLength)
		return false
	}

	b.submit(ctx, cfg, game.TitleCase(word))
	_, awaiting := b.Awaiting(chatID)
	return awaiting
}

// resolveConstraint returns the active constraint: the pending prompt when
// present, otherwise the newest prompt-shaped message within the bounded
// history window.
func (b *Bot) resolveConstraint(ctx context.Context, chatID int64) (state.PendingPrompt, bool) {
	if p, ok := b.store.GetPending(chatID); ok {
		return p, true
	}

	msgs, err := b.msgr.History(ctx, chatID, b.cfg.HistoryScanLimit)
	if err != nil {
		log.Warn().Err(err).Int64("chat", chatID).Msg("history scan failed")
		return state.PendingPrompt{}, false
	}
	for _, m := range msgs { // newest first
		if p := parser.ParsePrompt(m.Text); p != nil {
			recovered := state.PendingPrompt{StartLetter: p.StartLetter, MinLength: p.MinLength}
			b.store.SetPending(chatID, recovered)
			b.notify.Note("chat %d: recovered prompt start=%c min=%d from history", chatID, p.StartLetter, p.MinLength)
			return recovered, true
		}
	}
	return state.PendingPrompt{}, false
}

// pickFallback reserves the lexicographically first dictionary word that
// satisfies the constraint and is not already used. A lost reservation race
// moves on to the next candidate.
func (b *Bot) pickFallback(ctx context.Context, chatID int64, p state.PendingPrompt) (string, bool) {
	for _, w := range b.fallback.Words() { // ascending lexicographic
		if len(w) < p.MinLength || rune(w[0]) != p.StartLetter {
			continue
		}
		if b.store.IsUsed(chatID, w) {
			continue
		}
		if b.store.MarkUsed(ctx, chatID, w) {
			return w, true
		}
	}
	return "", false
}
