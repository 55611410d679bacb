package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
)

type tokenContextKey string

const messageIDKey tokenContextKey = "voicemail_message_id"

// DefaultMessageTokenTTL is how long an emailed voicemail link stays valid.
const DefaultMessageTokenTTL = 30 * 24 * time.Hour

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// MessageClaims authorize the download of one voicemail message.
type MessageClaims struct {
	MessageID string `json:"msg"`
	jwt.RegisteredClaims
}

// IssueMessageToken signs a download token for messageID.
func IssueMessageToken(secret []byte, messageID string, ttl time.Duration, now time.Time) (string, error) {
	claims := MessageClaims{
		MessageID: messageID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "switchyard",
			Subject:   messageID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseMessageToken verifies a download token and returns its message ID.
func ParseMessageToken(secret []byte, tokenString string) (string, error) {
	claims := &MessageClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid || claims.MessageID == "" {
		return "", ErrInvalidToken
	}
	return claims.MessageID, nil
}

// RequireMessageToken returns middleware that validates the token query
// parameter against the {id} route parameter. On success it stores the
// message ID in the request context.
func RequireMessageToken(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			id, err := ParseMessageToken(secret, tokenString)
			if err != nil || id != chi.URLParam(r, "id") {
				writeAuthError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
				return
			}
			ctx := context.WithValue(r.Context(), messageIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MessageIDFromContext retrieves the authorized message ID from the request
// context. Returns "" if not set.
func MessageIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey).(string)
	return id
}
