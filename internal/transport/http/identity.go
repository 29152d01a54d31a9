package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	obsmw "propchat/internal/observability/middleware"
)

// Identity extraction only. The upstream gateway owns authentication; the
// token reaching us is already vetted, we parse the shared-secret HS256
// claims to learn the numeric caller id.
type IdentityMiddleware struct {
	secret []byte
}

func NewIdentityMiddleware(secret string) *IdentityMiddleware {
	return &IdentityMiddleware{secret: []byte(secret)}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			slog.Warn("identity: missing bearer", "request_id", reqID)
			return
		}
		tokStr := strings.TrimSpace(raw[len("Bearer "):])

		token, err := jwt.Parse(tokStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			slog.Warn("identity: invalid token", "error", err, "request_id", reqID)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		callerID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || callerID <= 0 {
			http.Error(w, "no subject", http.StatusUnauthorized)
			slog.Warn("identity: bad subject", "subject", sub, "request_id", reqID)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), callerID)))
	})
}

type callerKey struct{}

func withCaller(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerFrom returns the authenticated caller id put there by the
// middleware.
func CallerFrom(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(callerKey{}).(int64)
	return v, ok
}
