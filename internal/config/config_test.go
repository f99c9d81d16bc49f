package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Parse.MaxPages)
	assert.Equal(t, int64(50), cfg.Parse.MaxFileSizeMB)
	assert.False(t, cfg.S3.Enabled())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)

	require.Len(t, cfg.Providers, 5)
	byID := map[string]ProviderConfig{}
	for _, p := range cfg.Providers {
		byID[p.ID] = p
	}

	lp := byID["llamaparse"]
	assert.Equal(t, "layout", lp.Kind)
	assert.Equal(t, 2*time.Second, lp.PollInterval())
	assert.Equal(t, 30, lp.PollMaxAttempts)
	assert.InDelta(t, 0.003, lp.PricePerPage, 1e-9)

	mo := byID["mistral-ocr"]
	assert.Equal(t, "ocr_batch", mo.Kind)
	assert.Equal(t, 60, mo.PollMaxAttempts)

	gpt := byID["gpt-4o"]
	assert.Equal(t, "vision", gpt.Kind)
	assert.InDelta(t, 2.5, gpt.PriceInPerMTok, 1e-9)
	assert.InDelta(t, 10.0, gpt.PriceOutPerMTok, 1e-9)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DOCBENCH_SERVER_PORT", ":9090")
	t.Setenv("DOCBENCH_PARSE_MAX_PAGES", "3")
	t.Setenv("DOCBENCH_S3_BUCKET", "parse-assets")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Parse.MaxPages)
	assert.True(t, cfg.S3.Enabled())
	assert.Equal(t, "parse-assets", cfg.S3.Bucket)
}

func TestLoad_ProviderOverlay(t *testing.T) {
	t.Setenv("DOCBENCH_PROVIDER_LLAMAPARSE_API_KEY", "llx-secret")
	t.Setenv("DOCBENCH_PROVIDER_MISTRAL_OCR_API_KEY", "mst-secret")
	t.Setenv("DOCBENCH_PROVIDER_UPSTAGE_ENDPOINT", "https://proxy.internal/upstage")
	t.Setenv("DOCBENCH_PROVIDER_GPT_4O_MODEL", "gpt-4o-2024-11-20")

	cfg, err := Load()
	require.NoError(t, err)

	byID := map[string]ProviderConfig{}
	for _, p := range cfg.Providers {
		byID[p.ID] = p
	}

	assert.Equal(t, "llx-secret", byID["llamaparse"].APIKey)
	assert.Equal(t, "mst-secret", byID["mistral-ocr"].APIKey)
	assert.Equal(t, "https://proxy.internal/upstage", byID["upstage"].Endpoint)
	assert.Equal(t, "gpt-4o-2024-11-20", byID["gpt-4o"].Model)
	// Untouched fields keep their registry defaults.
	assert.Equal(t, 30, byID["llamaparse"].PollMaxAttempts)
}
