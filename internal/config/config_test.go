package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cchat/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
api:
  base_url: https://chat.example.com/v1
  timeout: 5s
realtime:
  url: wss://chat.example.com/v1/ws
  reconnect_every: 500ms
upload:
  provider: s3
  max_size: 2MB
  s3:
    bucket: attachments
    region: eu-west-1
log:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com/v1", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Realtime.ReconnectEvery)
	assert.Equal(t, 1, cfg.Realtime.ReconnectBurst)
	assert.Equal(t, ProviderS3, cfg.Upload.Provider)
	assert.Equal(t, "attachments", cfg.Upload.S3.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "en", cfg.Locale.Lang)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CCHAT_API_BASE_URL", "http://override/v1")
	t.Setenv("CCHAT_LOCALE_LANG", "vi")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "http://override/v1", cfg.API.BaseURL)
	assert.Equal(t, "vi", cfg.Locale.Lang)
}

func TestDefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderCloudinary, cfg.Upload.Provider)
	assert.Equal(t, upload.DefaultMaxSize, cfg.Upload.MaxSize)
	assert.Equal(t, "cchat-upload", cfg.Upload.Cloudinary.Preset)
	assert.Equal(t, 2*time.Second, cfg.Realtime.ReconnectEvery)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{Upload: UploadConfig{Provider: "ftp", MaxSize: "lots"}}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"api.base_url", "realtime.url", "reconnect_every", "ftp", "lots"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestUploaderSelection(t *testing.T) {
	cfg := &Config{Upload: UploadConfig{Provider: ProviderCloudinary, MaxSize: "1MB", Cloudinary: CloudinaryConfig{CloudName: "demo", Preset: "p"}}}
	up, err := cfg.Uploader()
	require.NoError(t, err)
	c, ok := up.(*upload.Cloudinary)
	require.True(t, ok)
	assert.Equal(t, int64(1000*1000), c.MaxSize)

	cfg.Upload.Provider = ProviderNone
	up, err = cfg.Uploader()
	require.NoError(t, err)
	assert.Nil(t, up)
}
