package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fadedreams/repairshop/repair-service/domain"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey int

const (
	actorKey contextKey = iota
	requestIDKey
)

// Claims are the session claims; the subject is the user id
type Claims struct {
	Role       string `json:"role"`
	WorkshopID string `json:"workshopId,omitempty"`
	jwt.RegisteredClaims
}

// NewToken signs a session token for a user
func NewToken(secret []byte, userID string, role domain.Role, workshopID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role:       string(role),
		WorkshopID: workshopID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies an HS256 session token and resolves its actor
func ParseToken(secret []byte, token string) (domain.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, domain.AuthenticationError("invalid session token: %v", err)
	}
	return domain.NewActor(claims.Subject, domain.Role(claims.Role), claims.WorkshopID)
}

// Authenticate rejects requests without a valid bearer token and stores the
// resolved actor in the request context
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
				return
			}
			actor, err := ParseToken(secret, strings.TrimSpace(token))
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// ActorFrom returns the actor stored by Authenticate
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok && actor != nil
}
