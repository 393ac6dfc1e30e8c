package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Claims is the token payload issued by the authentication collaborator.
// This layer only verifies the signature and lifts out the identity; the
// auth protocol itself lives elsewhere.
type Claims struct {
	UserID    string `json:"user_id"`
	TrustTier int    `json:"trust_tier"`
	jwt.RegisteredClaims
}

// authMiddleware verifies the bearer token and stores the resulting identity
// in the request context. Requests without a verifiable identity never reach
// a handler.
func authMiddleware(secret []byte, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeErrorCode(w, http.StatusUnauthorized, "authentication required", codeUnauthorized)
			return
		}

		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid || claims.UserID == "" {
			logger.Debug("token verification failed", "error", err)
			writeErrorCode(w, http.StatusUnauthorized, "invalid or expired token", codeUnauthorized)
			return
		}

		identity := model.Identity{UserID: claims.UserID, TrustTier: claims.TrustTier}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom extracts the verified identity placed by authMiddleware.
func identityFrom(r *http.Request) (model.Identity, bool) {
	identity, ok := r.Context().Value(identityContextKey).(model.Identity)
	return identity, ok
}
