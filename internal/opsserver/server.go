// internal/opsserver/server.go
//
// Operator HTTP API for the word-chain bot.
// Responsibilities:
//   - Router + middleware (JSON, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/debug/words".
//   - Operator login: bcrypt-verified password → HS256 JWT.
//   - Gated chat administration: list/inspect chats, enable/disable the game
//     per chat, clear a chat's used-word set.
//
// Enable/disable is the permission gate the game lifecycle hangs off: chat
// records exist only between an enable and a disable, and disable cascades
// to used words and the pending prompt.

package opsserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/UltimatePolymath/word/internal/game"
	"github.com/UltimatePolymath/word/internal/state"
	"github.com/UltimatePolymath/word/internal/words"
)

// Config carries the ops server's auth material and word-source handles.
type Config struct {
	JWTSecret    []byte
	PasswordHash string // bcrypt hash of the operator password
	TokenTTL     time.Duration
}

// Server bundles the router and its collaborators.
type Server struct {
	r      *chi.Mux
	store  *state.Store
	corpus *words.Corpus
	dict   *words.Dictionary
	cfg    Config
}

// New constructs a Server, installs middleware, and registers routes.
func New(store *state.Store, corpus *words.Corpus, dict *words.Dictionary, cfg Config) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	s := &Server{r: chi.NewRouter(), store: store, corpus: corpus, dict: dict, cfg: cfg}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(10 * time.Second))
	s.r.Use(jsonContentType)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"word-chain-bot","endpoints":["/health","POST /auth/login","/chats"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Get("/debug/words", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{
			"corpus":   s.corpus.Size(),
			"fallback": s.dict.Size(),
		})
	})

	s.r.Post("/auth/login", s.handleLogin)

	// Chat administration — operator token required.
	s.r.Route("/chats", func(r chi.Router) {
		r.Use(s.requireOperator)
		r.Get("/", s.handleListChats)
		r.Get("/{chatID}", s.handleGetChat)
		r.Post("/{chatID}/enable", s.handleEnable)
		r.Post("/{chatID}/disable", s.handleDisable)
		r.Post("/{chatID}/clear-used", s.handleClearUsed)
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// requireOperator enforces a valid operator JWT.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
			return s.cfg.JWTSecret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		if role, _ := claims["role"].(string); role != "operator" {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	a := r.Header.Get("Authorization")
	if len(a) > len(prefix) && a[:len(prefix)] == prefix {
		return a[len(prefix):]
	}
	return ""
}

// ------------------------------- auth --------------------------------------

type loginReq struct {
	Password string `json:"password"`
}

// handleLogin verifies the operator password and issues a short-lived token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	if s.cfg.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(body.Password)) != nil {
		http.Error(w, `{"error":"Invalid password"}`, http.StatusUnauthorized)
		return
	}
	exp := time.Now().Add(s.cfg.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "operator",
		"exp":  exp.Unix(),
		"iat":  time.Now().Unix(),
	})
	ss, err := token.SignedString(s.cfg.JWTSecret)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"token": ss, "expiresAt": exp.UTC()})
}

// ------------------------------- chats --------------------------------------

// chatView is the ops representation of one chat's game state.
type chatView struct {
	ChatID      int64  `json:"chatId"`
	Alias       string `json:"alias"`
	DisplayName string `json:"displayName"`
	Strategy    string `json:"strategy"`
	EnabledAt   string `json:"enabledAt"`
	UsedWords   int    `json:"usedWords"`
	Pending     string `json:"pending,omitempty"` // "start=a min=5" when set
}

func (s *Server) viewOf(cfg state.ChatConfig) chatView {
	v := chatView{
		ChatID:      cfg.ChatID,
		Alias:       cfg.Alias,
		DisplayName: cfg.DisplayName,
		Strategy:    string(cfg.Strategy),
		EnabledAt:   cfg.EnabledAt.UTC().Format(time.RFC3339),
		UsedWords:   s.store.UsedCount(cfg.ChatID),
	}
	if p, ok := s.store.GetPending(cfg.ChatID); ok {
		v.Pending = "start=" + string(p.StartLetter) + " min=" + strconv.Itoa(p.MinLength)
	}
	return v
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats := s.store.List()
	out := make([]chatView, 0, len(chats))
	for _, c := range chats {
		out = append(out, s.viewOf(c))
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id, err := chatIDParam(r)
	if err != nil {
		http.Error(w, `{"error":"bad_chat_id"}`, http.StatusBadRequest)
		return
	}
	cfg, ok := s.store.Get(id)
	if !ok {
		http.Error(w, `{"error":"not_enabled"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"chat":  s.viewOf(cfg),
		"words": s.store.UsedWords(id),
	})
}

type enableReq struct {
	Strategy    string `json:"strategy"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	id, err := chatIDParam(r)
	if err != nil {
		http.Error(w, `{"error":"bad_chat_id"}`, http.StatusBadRequest)
		return
	}
	var body enableReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	strat := game.StrategyFrequency
	if body.Strategy != "" {
		strat, err = game.ParseStrategy(body.Strategy)
		if err != nil {
			http.Error(w, `{"error":"unknown_strategy"}`, http.StatusBadRequest)
			return
		}
	}
	cfg := s.store.Enable(r.Context(), id, body.DisplayName, strat)
	log.Info().Int64("chat", id).Str("strategy", string(cfg.Strategy)).Msg("chat enabled")
	_ = json.NewEncoder(w).Encode(s.viewOf(cfg))
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	id, err := chatIDParam(r)
	if err != nil {
		http.Error(w, `{"error":"bad_chat_id"}`, http.StatusBadRequest)
		return
	}
	s.store.Disable(r.Context(), id)
	log.Info().Int64("chat", id).Msg("chat disabled")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) handleClearUsed(w http.ResponseWriter, r *http.Request) {
	id, err := chatIDParam(r)
	if err != nil {
		http.Error(w, `{"error":"bad_chat_id"}`, http.StatusBadRequest)
		return
	}
	if _, ok := s.store.Get(id); !ok {
		http.Error(w, `{"error":"not_enabled"}`, http.StatusNotFound)
		return
	}
	s.store.ClearUsed(r.Context(), id)
	log.Info().Int64("chat", id).Msg("used words cleared")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func chatIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
}
