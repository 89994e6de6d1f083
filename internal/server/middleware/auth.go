package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/fieldsync/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки токена устройства.
// Пустой секрет означает открытый сервер: запросы проходят без проверки.
func AuthMiddleware(logger *slog.Logger, cfg handlers.TokenConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(cfg.Secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header")
				http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("Invalid Authorization header format")
				http.Error(w, "Unauthorized: invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateDeviceToken(cfg, parts[1])
			if err != nil {
				logger.Warn("Invalid device token", "error", err)
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), handlers.ClientIDKey, claims.ClientID)

			logger.Debug("Device authenticated", "client_id", claims.ClientID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
