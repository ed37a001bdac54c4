package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.EqualValues(t, 1, cfg.AmountTolerance)
	assert.Equal(t, 30*time.Second, cfg.Webpay.Timeout)
	assert.Equal(t, 7*24*time.Hour, cfg.CartTTL)
	assert.NotEmpty(t, cfg.Webpay.BaseURL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STOREFRONT_HTTP_ADDR", ":9999")
	t.Setenv("STOREFRONT_AMOUNT_TOLERANCE", "2")
	t.Setenv("STOREFRONT_WEBPAY_BASE_URL", "https://gw.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.EqualValues(t, 2, cfg.AmountTolerance)
	assert.Equal(t, "https://gw.example", cfg.Webpay.BaseURL)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}
