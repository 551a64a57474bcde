// internal/bot/notify.go
//
// Operator channel: every diagnostic the engine produces (exhaustion, retry
// failure, flush failure, transport failure) goes to a dedicated operator
// chat when one is configured, and always to the structured log. Failures
// inside the engine never crash the process; they end here.

package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/UltimatePolymath/word/internal/transport"
)

const notifySendTimeout = 10 * time.Second

// Notifier fans diagnostics out to the log and, optionally, an operator chat.
type Notifier struct {
	msgr   transport.Messenger
	chatID int64 // 0 disables chat delivery
}

// NewNotifier builds a Notifier. chatID 0 means log-only.
func NewNotifier(msgr transport.Messenger, chatID int64) *Notifier {
	return &Notifier{msgr: msgr, chatID: chatID}
}

// Alert reports a failure condition.
func (n *Notifier) Alert(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	log.Warn().Msg(text)
	n.deliver("⚠️ " + text)
}

// Note reports routine narration (retry progress, recovered prompts).
func (n *Notifier) Note(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	log.Info().Msg(text)
	n.deliver(text)
}

// deliver is best effort and asynchronous: callers are often on the bridge
// read loop, which must never stall behind a paced or slow operator send. A
// failed send is only logged, never retried here (the Messenger already
// handles its one backoff retry).
func (n *Notifier) deliver(text string) {
	if n.chatID == 0 || n.msgr == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
		defer cancel()
		if _, err := n.msgr.Send(ctx, n.chatID, text); err != nil {
			log.Error().Err(err).Msg("operator channel delivery failed")
		}
	}()
}
