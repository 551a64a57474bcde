// internal/transport/transport.go
//
// Narrow interface to the messaging collaborator. The game engine never
// talks to a chat platform directly: it sends text to a chat id, reads
// recent history, and reacts to a rate-limit signal. Everything
// platform-specific lives behind Messenger (see wsbridge for the bundled
// implementation).

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Message is one inbound or historical chat message.
type Message struct {
	ID     int64     `json:"id"`
	ChatID int64     `json:"chatId"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// RateLimitedError is returned by Send when the transport demands a wait
// before the message may be retried.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Messenger is the messaging collaborator.
type Messenger interface {
	// Send delivers text to a chat, returning the message handle.
	Send(ctx context.Context, chatID int64, text string) (int64, error)
	// History returns up to limit recent messages, newest first.
	History(ctx context.Context, chatID int64, limit int) ([]Message, error)
}

// Sender wraps a Messenger with client-side pacing and the single mandated
// backoff retry on a rate-limit signal. A second rate-limit (or any other
// send error) surfaces to the caller.
type Sender struct {
	m       Messenger
	limiter *rate.Limiter
}

// NewSender paces sends at rps with the given burst. rps <= 0 disables
// pacing.
func NewSender(m Messenger, rps float64, burst int) *Sender {
	var l *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Sender{m: m, limiter: l}
}

// Send delivers text, waiting out the pacing limiter first and retrying
// exactly once after a transport-mandated wait.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}
	id, err := s.m.Send(ctx, chatID, text)
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		return id, err
	}

	select {
	case <-time.After(rl.RetryAfter):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return s.m.Send(ctx, chatID, text)
}

// History proxies to the underlying Messenger.
func (s *Sender) History(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	return s.m.History(ctx, chatID, limit)
}
