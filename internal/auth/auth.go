// Package auth provides password hashing and the HTTP Basic middleware
// that resolves the acting account for authenticated routes.
//
// The engine never reads ambient identity: handlers pull the resolved
// username out of the request context and pass it to engine operations
// explicitly.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/vendmx/vending-engine/internal/model"
	"github.com/vendmx/vending-engine/internal/store"
)

type contextKey struct{}

var identityKey contextKey

// dummyHash is compared against when a username does not resolve, so an
// unknown username costs the same as a wrong password.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Identity returns the authenticated account placed in the context by
// Middleware. The second return is false on unauthenticated requests.
func Identity(ctx context.Context) (*model.Account, bool) {
	a, ok := ctx.Value(identityKey).(*model.Account)
	return a, ok
}

// Middleware authenticates requests with HTTP Basic credentials against
// the account store and injects the resolved account into the request
// context. Requests without valid credentials get 401.
func Middleware(accounts store.AccountStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			account, err := accounts.Get(r.Context(), username)
			if err != nil {
				bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
				slog.Info("authentication failed", "username", username)
				unauthorized(w)
				return
			}
			if !VerifyPassword(account.PasswordHash, password) {
				slog.Info("authentication failed", "username", username)
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="vending"`)
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}
