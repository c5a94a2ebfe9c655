package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPSBOARD_SPREADSHEET_ID", "")
	t.Setenv("SPREADSHEET_ID", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, ".local/opsboard.db", cfg.Lease.DB)
	assert.Equal(t, 3*time.Second, cfg.Lease.Wait)
	assert.Equal(t, 15*time.Second, cfg.Lease.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "KRW", cfg.Currency)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)

	err = cfg.RequireSheets()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Contains(t, err.Error(), "spreadsheet_id is required")
}

func TestLoadFallsBackToUnprefixedNames(t *testing.T) {
	t.Setenv("SPREADSHEET_ID", "sheet-123")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	t.Setenv("ADMIN_PASS", "hunter2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sheet-123", cfg.SpreadsheetID)
	assert.Equal(t, `{"type":"service_account"}`, string(cfg.Credentials))
	assert.Equal(t, "hunter2", cfg.AdminPass)
	assert.NoError(t, cfg.RequireSheets())

	t.Setenv("OPSBOARD_SPREADSHEET_ID", "sheet-prefixed")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "sheet-prefixed", cfg.SpreadsheetID)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "sa.json")
	require.NoError(t, os.WriteFile(credPath, []byte(`{"type":"service_account","project_id":"p"}`), 0o600))
	tokenPath := filepath.Join(dir, "channel1.json")
	require.NoError(t, os.WriteFile(tokenPath, []byte(`{"refresh_token":"r"}`), 0o600))

	path := filepath.Join(dir, "opsboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
spreadsheet_id: from-file
credentials: `+credPath+`
timezone: Asia/Seoul
lease:
  wait: 1s
channels:
  - id: UC1
    name: 엔믹스쇼츠
    credentials_path: `+tokenPath+`
  - id: UC2
    name: 유쾌한곰
`), 0o600))

	t.Setenv("OPSBOARD_SPREADSHEET_ID", "")
	t.Setenv("SPREADSHEET_ID", "")
	t.Setenv("OPSBOARD_ADDR", ":9090")
	t.Setenv("OPSBOARD_LEASE_TTL", "30s")
	t.Setenv("YOUTUBE_CREDENTIALS_CHANNEL2", `{"refresh_token":"second"}`)
	t.Setenv("YOUTUBE_CREDENTIALS_CHANNEL3", `{"refresh_token":"third"}`)
	t.Setenv("YOUTUBE_CHANNEL3_NAME", "세번째")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.SpreadsheetID)
	assert.Contains(t, string(cfg.Credentials), "project_id")
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, time.Second, cfg.Lease.Wait)
	assert.Equal(t, 30*time.Second, cfg.Lease.TTL)
	assert.Equal(t, "Asia/Seoul", cfg.Location.String())

	require.Len(t, cfg.Channels, 3)
	assert.Equal(t, "UC1", cfg.Channels[0].ID)
	assert.Equal(t, `{"refresh_token":"r"}`, string(cfg.Channels[0].Credentials))
	assert.Equal(t, `{"refresh_token":"second"}`, string(cfg.Channels[1].Credentials))
	assert.Equal(t, "세번째", cfg.Channels[2].Name)
	assert.Equal(t, `{"refresh_token":"third"}`, string(cfg.Channels[2].Credentials))
}

func TestLoadReportsEveryProblem(t *testing.T) {
	t.Setenv("OPSBOARD_CREDENTIALS", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("OPSBOARD_TIMEZONE", "Mars/Olympus")
	t.Setenv("OPSBOARD_LEASE_WAIT", "0s")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Contains(t, err.Error(), "credentials: unable to read")
	assert.Contains(t, err.Error(), "timezone:")
	assert.Contains(t, err.Error(), "lease.wait must be positive")
}

func TestLoadTracing(t *testing.T) {
	t.Setenv("OPSBOARD_TRACING_ENABLED", "true")
	t.Setenv("OPSBOARD_TRACING_EXPORTER", "zipkin")
	t.Setenv("OPSBOARD_TRACING_SAMPLE_RATE", "0.25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "zipkin", cfg.Tracing.Exporter)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRate)

	t.Setenv("OPSBOARD_TRACING_EXPORTER", "jaeger")
	t.Setenv("OPSBOARD_TRACING_SAMPLE_RATE", "2")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tracing.exporter must be otlp or zipkin, got "jaeger"`)
	assert.Contains(t, err.Error(), "tracing.sample_rate must be in (0, 1]")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestMergeEnvChannelsIgnoresBlankValues(t *testing.T) {
	channels := mergeEnvChannels(nil, []string{
		"YOUTUBE_CREDENTIALS_CHANNEL1=",
		"YOUTUBE_CREDENTIALS_CHANNELX={}",
		"YOUTUBE_CREDENTIALS_CHANNEL2={}",
		"YOUTUBE_CHANNEL2_ID=UC2",
	})
	require.Len(t, channels, 1)
	assert.Equal(t, Channel{ID: "UC2", Name: "channel2", CredentialsJSON: "{}"}, channels[0])
}
