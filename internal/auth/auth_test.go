package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vendmx/vending-engine/internal/auth"
	"github.com/vendmx/vending-engine/internal/model"
	"github.com/vendmx/vending-engine/internal/store"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "secret" {
		t.Error("hash must not equal the plaintext")
	}
	if !auth.VerifyPassword(hash, "secret") {
		t.Error("correct password should verify")
	}
	if auth.VerifyPassword(hash, "wrong") {
		t.Error("wrong password should not verify")
	}
}

func newAuthedRouter(t *testing.T) (*store.MemoryAccountStore, http.Handler) {
	t.Helper()
	accounts := store.NewMemoryAccountStore()

	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	err = accounts.Create(context.Background(), &model.Account{
		ID:           "id-alice",
		Username:     "alice",
		PasswordHash: hash,
		Role:         model.RoleBuyer,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := auth.Identity(r.Context())
		if !ok {
			t.Error("expected identity in context")
			return
		}
		w.Write([]byte(account.Username))
	})
	return accounts, auth.Middleware(accounts)(inner)
}

func TestMiddleware_ValidCredentials(t *testing.T) {
	_, handler := newAuthedRouter(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth("alice", "pw")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "alice" {
		t.Errorf("expected identity alice, got %q", w.Body.String())
	}
}

func TestMiddleware_WrongPassword(t *testing.T) {
	_, handler := newAuthedRouter(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth("alice", "nope")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_UnknownUser(t *testing.T) {
	_, handler := newAuthedRouter(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth("mallory", "pw")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_NoCredentials(t *testing.T) {
	_, handler := newAuthedRouter(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge header")
	}
}
