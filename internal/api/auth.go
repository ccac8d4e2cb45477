package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/book-expert/chapter-audio-service/internal/core"
)

// TokenAuthenticator resolves static bearer tokens to user ids.
type TokenAuthenticator struct {
	tokens map[string]string
}

// NewTokenAuthenticator copies tokens (token -> user id).
func NewTokenAuthenticator(tokens map[string]string) *TokenAuthenticator {
	copied := make(map[string]string, len(tokens))
	for token, user := range tokens {
		if token != "" && user != "" {
			copied[token] = user
		}
	}

	return &TokenAuthenticator{tokens: copied}
}

// Authenticate returns the user id for token.
func (a *TokenAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	for known, user := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return user, nil
		}
	}

	return "", core.ErrUnauthenticated
}

type callerKey struct{}

func withCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// callerFrom returns the authenticated user id set by requireAuth.
func callerFrom(ctx context.Context) string {
	userID, _ := ctx.Value(callerKey{}).(string)

	return userID
}

// requireAuth rejects requests without a valid "Authorization: Bearer" header.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeError(w, r, core.ErrUnauthenticated)

			return
		}

		userID, err := s.auth.Authenticate(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.writeError(w, r, err)

			return
		}

		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), userID)))
	})
}
