package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceToken_RoundTrip(t *testing.T) {
	cfg := TokenConfig{
		Secret:   []byte("test-secret-key"),
		TokenTTL: time.Hour,
	}

	token, err := GenerateDeviceToken(cfg, "device-a")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateDeviceToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "device-a", claims.ClientID)
	assert.Equal(t, "fieldsync", claims.Issuer)
}

func TestDeviceToken_WrongSecret(t *testing.T) {
	token, err := GenerateDeviceToken(TokenConfig{Secret: []byte("one"), TokenTTL: time.Hour}, "device-a")
	require.NoError(t, err)

	_, err = ValidateDeviceToken(TokenConfig{Secret: []byte("two"), TokenTTL: time.Hour}, token)
	assert.Error(t, err)
}

func TestDeviceToken_Expired(t *testing.T) {
	cfg := TokenConfig{
		Secret:   []byte("test-secret-key"),
		TokenTTL: -time.Minute,
	}

	token, err := GenerateDeviceToken(cfg, "device-a")
	require.NoError(t, err)

	_, err = ValidateDeviceToken(cfg, token)
	assert.Error(t, err)
}
