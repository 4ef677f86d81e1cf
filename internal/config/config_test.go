package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "0 8 * * *", cfg.Scheduler.ContractCheckSpec)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.PaymentCheckInterval)
	assert.Equal(t, 5, cfg.Scheduler.ContractLeadDays)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.PaymentReminderLead)
	assert.Equal(t, LockNone, cfg.Scheduler.Lock)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("PAYMENT_CHECK_INTERVAL", "30s")
	t.Setenv("CONTRACT_LEAD_DAYS", "7")
	t.Setenv("SCHEDULER_LOCK", LockRedis)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PaymentCheckInterval)
	assert.Equal(t, 7, cfg.Scheduler.ContractLeadDays)
	assert.Equal(t, LockRedis, cfg.Scheduler.Lock)
}

func TestNewConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "7070"
scheduler:
  contract_check_spec: "30 6 * * *"
  contract_lead_days: 3
outbox:
  batch_size: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CONTRACT_LEAD_DAYS", "4")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "30 6 * * *", cfg.Scheduler.ContractCheckSpec)
	assert.Equal(t, 4, cfg.Scheduler.ContractLeadDays)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	// untouched by the file
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "PAYMENT_CHECK_INTERVAL", "soon"},
		{"bad int", "OUTBOX_BATCH_SIZE", "many"},
		{"empty db", "DB_CONN", ""},
		{"empty secret", "JWT_SECRET", ""},
		{"unknown lock", "SCHEDULER_LOCK", "zookeeper"},
		{"zero lead", "CONTRACT_LEAD_DAYS", "0"},
		{"zero outbox interval", "OUTBOX_INTERVAL", "0s"},
		{"negative outbox interval", "OUTBOX_INTERVAL", "-5s"},
		{"zero lock ttl", "SCHEDULER_LOCK_TTL", "0s"},
		{"negative reminder lead", "PAYMENT_REMINDER_LEAD", "-1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(tt.key, tt.val)

			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewConfig_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := NewConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}
