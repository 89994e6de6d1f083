package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey тип для ключей контекста
type contextKey string

// ClientIDKey ключ для хранения client_id аутентифицированного устройства
const ClientIDKey contextKey = "client_id"

// GetClientID извлекает client_id устройства из контекста запроса
func GetClientID(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(ClientIDKey).(string)
	return clientID, ok
}

// DeviceClaims представляет JWT claims токена устройства
type DeviceClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenConfig содержит конфигурацию для токенов устройств.
// Пустой Secret выключает аутентификацию целиком.
type TokenConfig struct {
	Secret   []byte
	TokenTTL time.Duration
}

// GenerateDeviceToken создает подписанный токен для устройства
func GenerateDeviceToken(cfg TokenConfig, clientID string) (string, error) {
	now := time.Now()

	claims := DeviceClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "fieldsync",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateDeviceToken валидирует и парсит токен устройства
func ValidateDeviceToken(cfg TokenConfig, tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*DeviceClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
