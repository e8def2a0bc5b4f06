package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pixelmint/pixelmint/internal/models"
)

type contextKey string

const accountContextKey contextKey = "account"

// issueToken signs a bearer token for the account. The role claim is
// informational only; authorization always re-checks the live account.
func (s *Server) issueToken(account models.Account) (string, error) {
	claims := jwt.MapClaims{
		"sub":  account.ID,
		"role": string(account.Role),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(s.cfg.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// sessionMiddleware resolves the bearer token to a live account and stashes
// it in the request context. Tokens for deleted accounts are rejected.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.writeError(w, http.StatusUnauthorized, "invalid token format")
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		accountID, ok := claims["sub"].(string)
		if !ok || accountID == "" {
			s.writeError(w, http.StatusUnauthorized, "invalid subject in token")
			return
		}

		account, err := s.book.AccountByID(accountID)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "account no longer exists")
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware gates the admin route group on the live account role.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := accountFrom(r)
		if account.Role != models.RoleAdmin {
			s.writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accountFrom(r *http.Request) models.Account {
	account, _ := r.Context().Value(accountContextKey).(models.Account)
	return account
}
