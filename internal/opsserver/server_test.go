package opsserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/UltimatePolymath/word/internal/game"
	"github.com/UltimatePolymath/word/internal/state"
	"github.com/UltimatePolymath/word/internal/words"
)

type nullPersister struct{}

func (nullPersister) Load(ctx context.Context) (*state.Snapshot, error) {
	return &state.Snapshot{UsedWords: map[int64][]string{}}, nil
}
func (nullPersister) Save(ctx context.Context, snap *state.Snapshot) error { return nil }

const testPassword = "hunter2"

func newTestServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	store := state.NewStore(nullPersister{}, nil)
	corpus := words.NewCorpus([]words.Entry{{Word: "apple", Score: 0.001}})
	dict := words.NewDictionary([]string{"apple"})
	s := New(store, corpus, dict, Config{
		JWTSecret:    []byte("test-secret"),
		PasswordHash: string(hash),
	})
	return s, store
}

func do(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(s, http.MethodPost, "/auth/login", "", map[string]string{"password": testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Token == "" {
		t.Fatalf("bad login response: %v %s", err, rec.Body.String())
	}
	return out.Token
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(s, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodPost, "/auth/login", "", map[string]string{"password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestChatsRequireToken(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(s, http.MethodGet, "/chats", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(s, http.MethodPost, "/chats/1/enable", "garbage", map[string]string{}); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestEnableDisableLifecycle(t *testing.T) {
	s, store := newTestServer(t)
	token := login(t, s)

	rec := do(s, http.MethodPost, "/chats/42/enable", token,
		map[string]string{"strategy": "suffix_priority", "displayName": "Test"})
	if rec.Code != http.StatusOK {
		t.Fatalf("enable = %d %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ChatID   int64  `json:"chatId"`
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.ChatID != 42 || view.Strategy != "suffix_priority" {
		t.Errorf("view = %+v", view)
	}
	if cfg, ok := store.Get(42); !ok || cfg.Strategy != game.StrategySuffixPriority {
		t.Errorf("store = %+v ok=%v", cfg, ok)
	}

	if rec := do(s, http.MethodGet, "/chats/42", token, nil); rec.Code != http.StatusOK {
		t.Errorf("get chat = %d", rec.Code)
	}
	if rec := do(s, http.MethodPost, "/chats/42/disable", token, nil); rec.Code != http.StatusOK {
		t.Errorf("disable = %d", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/chats/42", token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after disable, got %d", rec.Code)
	}
}

func TestEnableRejectsUnknownStrategy(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)
	rec := do(s, http.MethodPost, "/chats/1/enable", token, map[string]string{"strategy": "greedy"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestClearUsed(t *testing.T) {
	s, store := newTestServer(t)
	token := login(t, s)
	ctx := context.Background()
	store.Enable(ctx, 7, "", game.StrategyFrequency)
	store.MarkUsed(ctx, 7, "apple")

	if rec := do(s, http.MethodPost, "/chats/7/clear-used", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("clear = %d", rec.Code)
	}
	if store.UsedCount(7) != 0 {
		t.Error("used set should be empty")
	}

	if rec := do(s, http.MethodPost, "/chats/999/clear-used", token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown chat, got %d", rec.Code)
	}
}
