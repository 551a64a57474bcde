package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/UltimatePolymath/word/internal/game"
	"github.com/UltimatePolymath/word/internal/state"
	"github.com/UltimatePolymath/word/internal/transport"
	"github.com/UltimatePolymath/word/internal/words"
)

// fakeMessenger records sends and serves a canned history.
type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	history []transport.Message
}

func (f *fakeMessenger) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sent = append(f.sent, text)
	return int64(len(f.sent)), nil
}

func (f *fakeMessenger) History(ctx context.Context, chatID int64, limit int) ([]transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeMessenger) sentWords() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// nullPersister keeps everything in memory.
type nullPersister struct{}

func (nullPersister) Load(ctx context.Context) (*state.Snapshot, error) {
	return &state.Snapshot{UsedWords: map[int64][]string{}}, nil
}
func (nullPersister) Save(ctx context.Context, snap *state.Snapshot) error { return nil }

const testChat int64 = 99

func newTestBot(t *testing.T, strat game.Strategy) (*Bot, *fakeMessenger, *state.Store) {
	t.Helper()
	store := state.NewStore(nullPersister{}, nil)
	store.Enable(context.Background(), testChat, "Test Chat", strat)

	corpus := words.NewCorpus([]words.Entry{
		{Word: "about", Score: 0.002},
		{Word: "apple", Score: 0.001},
		{Word: "ample", Score: 0.0005},
		{Word: "kettle", Score: 0.0004},
	})
	fallback := words.NewDictionary([]string{"abide", "aback", "kitten", "ablaze"})

	msgr := &fakeMessenger{}
	b := New(store, game.NewEngine(corpus, 0, 0), fallback, msgr,
		NewNotifier(nil, 0), Config{HistoryScanLimit: 5, ReplyDelay: time.Millisecond})
	return b, msgr, store
}

func inbound(text string) transport.Message {
	return transport.Message{ChatID: testChat, Sender: "opponent", Text: text, SentAt: time.Now()}
}

func TestPromptTriggersSubmission(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)
	ctx := context.Background()

	b.HandleMessage(ctx, inbound("Your word must start with A and include at least 5 letters!"))

	sent := msgr.sentWords()
	if len(sent) != 1 || sent[0] != "About" {
		t.Fatalf("expected one send of About, got %v", sent)
	}
	if w, ok := b.Awaiting(testChat); !ok || w != "about" {
		t.Errorf("expected awaiting about, got %q ok=%v", w, ok)
	}
	if !store.IsUsed(testChat, "about") {
		t.Error("submitted word should be reserved")
	}
	if p, ok := store.GetPending(testChat); !ok || p.StartLetter != 'a' || p.MinLength != 5 {
		t.Errorf("pending prompt = %+v ok=%v", p, ok)
	}
}

func TestDisabledChatIsIgnored(t *testing.T) {
	b, msgr, _ := newTestBot(t, game.StrategyFrequency)
	msg := inbound("Your word must start with A and include at least 5 letters!")
	msg.ChatID = 12345 // never enabled

	b.HandleMessage(context.Background(), msg)
	if len(msgr.sentWords()) != 0 {
		t.Error("disabled chat must not trigger a send")
	}
}

func TestAcceptedVerdictCommitsAndIdles(t *testing.T) {
	b, _, store := newTestBot(t, game.StrategyFrequency)
	ctx := context.Background()

	b.HandleMessage(ctx, inbound("Your word must start with A and include at least 5 letters!"))
	b.HandleMessage(ctx, inbound("About is accepted! 🎉"))

	if _, ok := b.Awaiting(testChat); ok {
		t.Error("chat should be idle after acceptance")
	}
	if _, ok := store.GetPending(testChat); ok {
		t.Error("pending prompt should be cleared on acceptance")
	}
	if !store.IsUsed(testChat, "about") {
		t.Error("accepted word must stay committed")
	}
}

func TestRejectionRetriesFromFallback(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)
	ctx := context.Background()

	b.HandleMessage(ctx, inbound("Your word must start with A and include at least 5 letters!"))
	b.HandleMessage(ctx, inbound("About is not in my word list 😕"))

	sent := msgr.sentWords()
	if len(sent) != 2 {
		t.Fatalf("expected prompt answer plus retry, got %v", sent)
	}
	// Lexicographically first fallback candidate: aback < abide < ablaze.
	if sent[1] != "Aback" {
		t.Errorf("expected Aback, got %q", sent[1])
	}
	if w, ok := b.Awaiting(testChat); !ok || w != "aback" {
		t.Errorf("expected awaiting aback, got %q ok=%v", w, ok)
	}
	if !store.IsUsed(testChat, "aback") {
		t.Error("retry word should be reserved")
	}
}

func TestRetrySkipsUsedFallbackWords(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)
	ctx := context.Background()
	store.MarkUsed(ctx, testChat, "aback")

	b.HandleMessage(ctx, inbound("Your word must start with A and include at least 5 letters!"))
	b.HandleMessage(ctx, inbound("About has been used before!"))

	sent := msgr.sentWords()
	if len(sent) != 2 || sent[1] != "Abide" {
		t.Errorf("expected Abide after skipping used aback, got %v", sent)
	}
}

func TestRetryRecoversPromptFromHistory(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)
	ctx := context.Background()

	b.HandleMessage(ctx, inbound("Your word must start with K and include at least 6 letters!"))
	store.ClearPending(testChat) // simulate a restart losing the prompt
	msgr.mu.Lock()
	msgr.history = []transport.Message{
		inbound("Kettle is not in my word list"),
		inbound("Your word must start with K and include at least 6 letters!"),
	}
	msgr.mu.Unlock()

	b.HandleMessage(ctx, inbound("Kettle is not in my word list 😕"))

	sent := msgr.sentWords()
	if len(sent) != 2 || sent[1] != "Kitten" {
		t.Errorf("expected Kitten from recovered prompt, got %v", sent)
	}
}

func TestRejectionWithoutRecoverablePromptGivesUp(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)
	ctx := context.Background()

	b.HandleMessage(ctx, inbound("Your word must start with A and include at least 5 letters!"))
	store.ClearPending(testChat)
	// History holds chatter only, no prompt-shaped message.
	msgr.mu.Lock()
	msgr.history = []transport.Message{inbound("nice game everyone")}
	msgr.mu.Unlock()

	b.HandleMessage(ctx, inbound("About is not in my word list"))

	if len(msgr.sentWords()) != 1 {
		t.Errorf("no retry should go out, got %v", msgr.sentWords())
	}
	if _, ok := b.Awaiting(testChat); ok {
		t.Error("chat should be idle after an unrecoverable rejection")
	}
}

func TestStrayAcceptanceCommitsWithoutSending(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)

	b.HandleMessage(context.Background(), inbound("Apple is accepted!"))
	if len(msgr.sentWords()) != 0 {
		t.Error("an acceptance verdict must not trigger a send")
	}
	if !store.IsUsed(testChat, "apple") {
		t.Error("accepted word should be committed even without an outstanding submission")
	}
}

// seededPersister restores a fixed snapshot, standing in for the durable
// record left behind by a previous process.
type seededPersister struct{ snap *state.Snapshot }

func (p seededPersister) Load(ctx context.Context) (*state.Snapshot, error) { return p.snap, nil }
func (p seededPersister) Save(ctx context.Context, snap *state.Snapshot) error {
	return nil
}

func TestRejectionAfterRestartRetriesFromHistory(t *testing.T) {
	ctx := context.Background()

	// A fresh process: the awaiting map and pending prompt are gone, only the
	// persisted snapshot and the chat history remain.
	store := state.NewStore(seededPersister{&state.Snapshot{
		Chats: []state.ChatConfig{{
			ChatID:    testChat,
			Alias:     "0001",
			Strategy:  game.StrategyFrequency,
			EnabledAt: time.Now().UTC(),
		}},
		UsedWords: map[int64][]string{testChat: {"kettle"}},
	}}, nil)
	if err := store.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	corpus := words.NewCorpus([]words.Entry{{Word: "kettle", Score: 0.0004}})
	fallback := words.NewDictionary([]string{"kitten"})
	msgr := &fakeMessenger{history: []transport.Message{
		inbound("Your word must start with K and include at least 6 letters!"),
	}}
	b := New(store, game.NewEngine(corpus, 0, 0), fallback, msgr,
		NewNotifier(nil, 0), Config{HistoryScanLimit: 5, ReplyDelay: time.Millisecond})

	b.HandleMessage(ctx, inbound("Kettle is not in my word list 😕"))

	sent := msgr.sentWords()
	if len(sent) != 1 || sent[0] != "Kitten" {
		t.Fatalf("expected a fallback retry of Kitten after restart, got %v", sent)
	}
	if w, ok := b.Awaiting(testChat); !ok || w != "kitten" {
		t.Errorf("expected awaiting kitten, got %q ok=%v", w, ok)
	}
}

func TestSubmitCancellationClearsState(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)
	b.cfg.ReplyDelay = time.Minute // cancellation must win the delay race
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg, _ := store.Get(testChat)
	store.MarkUsed(context.Background(), testChat, "about")
	b.mu.Lock()
	b.awaiting[testChat] = "before"
	b.mu.Unlock()

	b.submit(ctx, cfg, "About")

	if len(msgr.sentWords()) != 0 {
		t.Error("cancelled submit must not send")
	}
	if store.IsUsed(testChat, "about") {
		t.Error("reservation should be released on cancellation")
	}
	if _, ok := b.Awaiting(testChat); ok {
		t.Error("awaiting entry should be cleared on cancellation")
	}
}

func TestHarvestMarksBareWords(t *testing.T) {
	b, _, store := newTestBot(t, game.StrategyFrequency)
	ctx := context.Background()

	b.HandleMessage(ctx, inbound("I saw a Cat today, 2 of them!"))
	for _, w := range []string{"i", "saw", "a", "cat", "today", "of", "them"} {
		if !store.IsUsed(testChat, w) {
			t.Errorf("%q should be harvested", w)
		}
	}
	if _, ok := b.Awaiting(testChat); ok {
		t.Error("harvesting must not change the chat's state")
	}
}

func TestSendFailureRollsBackReservation(t *testing.T) {
	b, msgr, store := newTestBot(t, game.StrategyFrequency)
	msgr.sendErr = errors.New("connection reset")
	ctx := context.Background()

	b.HandleMessage(ctx, inbound("Your word must start with A and include at least 5 letters!"))

	if _, ok := b.Awaiting(testChat); ok {
		t.Error("chat should be idle after a failed send")
	}
	if store.IsUsed(testChat, "about") {
		t.Error("reservation should be rolled back so the word stays playable")
	}
}

func TestSelectionExhaustionStaysIdle(t *testing.T) {
	b, msgr, _ := newTestBot(t, game.StrategyFrequency)

	b.HandleMessage(context.Background(), inbound("Your word must start with Q and include at least 5 letters!"))
	if len(msgr.sentWords()) != 0 {
		t.Error("exhaustion must not send anything")
	}
	if _, ok := b.Awaiting(testChat); ok {
		t.Error("chat should stay idle on exhaustion")
	}
}
