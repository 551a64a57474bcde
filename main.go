package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/UltimatePolymath/word/internal/bot"
	"github.com/UltimatePolymath/word/internal/game"
	"github.com/UltimatePolymath/word/internal/opsserver"
	"github.com/UltimatePolymath/word/internal/state"
	"github.com/UltimatePolymath/word/internal/transport"
	"github.com/UltimatePolymath/word/internal/transport/wsbridge"
	"github.com/UltimatePolymath/word/internal/words"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	corpus, err := words.LoadCorpus(os.Getenv("WORDS_CORPUS_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load frequency corpus")
	}
	fallback, err := words.LoadDictionary(os.Getenv("WORDS_FALLBACK_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load fallback dictionary")
	}
	log.Info().Int("corpus", corpus.Size()).Int("fallback", fallback.Size()).Msg("word sources loaded")

	persister, err := buildPersister()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up persistence")
	}

	bridge := wsbridge.New(getEnv("BRIDGE_URL", "ws://localhost:8765/ws"))
	sender := transport.NewSender(bridge, envFloat("SEND_RPS", 1), envInt("SEND_BURST", 3))
	notifier := bot.NewNotifier(sender, envInt64("OPERATOR_CHAT_ID", 0))

	store := state.NewStore(persister, func(err error) {
		notifier.Alert("state flush failed: %v", err)
	})
	if err := store.LoadInitial(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load chat state")
	}
	log.Info().Int("chats", len(store.List())).Msg("chat state loaded")

	engine := game.NewEngine(corpus, envInt("TOP_N", game.DefaultTopN), envFloat("SUFFIX_FREQ_FLOOR", game.DefaultSuffixFloor))
	loop := bot.New(store, engine, fallback, sender, notifier, bot.Config{
		HistoryScanLimit: envInt("HISTORY_SCAN_LIMIT", 10),
		ReplyDelay:       envDur("REPLY_DELAY", 2*time.Second),
	})

	// Inbound messages are handled on the bridge's read loop, preserving
	// per-chat delivery order.
	bridge.OnMessage = func(m transport.Message) {
		loop.HandleMessage(ctx, m)
	}
	if err := bridge.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to chat bridge")
	}
	defer bridge.Close()

	ops := opsserver.New(store, corpus, fallback, opsserver.Config{
		JWTSecret:    []byte(getEnv("JWT_SECRET", "dev_secret_change_me")),
		PasswordHash: os.Getenv("OPS_PASSWORD_HASH"),
		TokenTTL:     envDur("OPS_TOKEN_TTL", 24*time.Hour),
	})
	opsPort := getEnv("OPS_PORT", "8090")
	go func() {
		log.Info().Str("port", opsPort).Msg("starting ops server")
		if err := ops.Start(":" + opsPort); err != nil {
			log.Fatal().Err(err).Msg("ops server exited")
		}
	}()

	log.Info().Msg("word-chain bot running")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
}

// buildPersister selects the durable backend: sqlite (default) or a single
// JSON snapshot file.
func buildPersister() (state.Persister, error) {
	switch getEnv("STATE_BACKEND", "sqlite") {
	case "file":
		return state.NewFilePersister(getEnv("STATE_FILE", "data/state.json")), nil
	default:
		db, err := openDB(getEnv("DB_PATH", "data/bot.db"))
		if err != nil {
			return nil, err
		}
		if err := migrate(db); err != nil {
			return nil, err
		}
		return state.NewSQLitePersister(db), nil
	}
}

// ------------------------------ env helpers --------------------------------

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Msg("invalid int in environment, using default")
	}
	return def
}

func envInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Warn().Str("key", k).Msg("invalid int in environment, using default")
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", k).Msg("invalid float in environment, using default")
	}
	return def
}

func envDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", k).Msg("invalid duration in environment, using default")
	}
	return def
}
