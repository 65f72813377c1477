package middleware

import (
	"context"
	"errors"
	"net/http"

	"starblog/internal/common"
	"starblog/internal/domain/model"
	"starblog/internal/platform/metrics"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserCtxKey contextKey = "user"

	// SessionCookieName holds the session token.
	SessionCookieName = "access_token"
)

// Authenticator resolves a raw session token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*model.User, error)
}

// SessionGuard admits requests carrying a valid session cookie and puts
// the resolved user in the request context. Every rejection gets the same
// 401 body; the reason is only logged.
func SessionGuard(auth Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				raw = cookie.Value
			}

			user, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				if !common.IsAuthError(err) {
					log.Error("session lookup failed",
						zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
						zap.Error(err),
					)
					common.RespondWithDomainError(w, err)
					return
				}
				reason := authFailureReason(err)
				metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
				log.Warn("rejected session",
					zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.String("reason", reason),
					zap.Error(err),
				)
				common.RespondWithDomainError(w, common.ErrUnauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), UserCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Helper to get the session user from context
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(UserCtxKey).(*model.User)
	return user, ok && user != nil
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, common.ErrTokenMissingSubject):
		return "missing_subject"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "unknown_subject"
	default:
		return "missing"
	}
}
