package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := config.Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, config.StorageDriverMemory, cfg.Storage)
	assert.Equal(t, "strict", cfg.Checkout.StockPolicy)
	assert.Equal(t, 5, cfg.Checkout.OrderNumberAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Checkout.ResubmitWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "0", cfg.Pricing.TaxRate)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  port: "9090"
storage: postgres
postgres:
  user: app
  dbname: agrifarma
  max_conn_lifetime: 5m
checkout:
  stock_policy: lenient
  resubmit_window: 45s
seed:
  - name: Wheat Seeds
    slug: wheat-seeds
    price: "100.00"
    stock_quantity: 5
`)
	t.Setenv("APP_PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := config.Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.App.Port, "env overrides yaml")
	assert.Equal(t, "app", cfg.Postgres.User)
	assert.Equal(t, 5*time.Minute, cfg.Postgres.MaxConnLifetime)
	assert.Equal(t, "lenient", cfg.Checkout.StockPolicy)
	assert.Equal(t, 45*time.Second, cfg.Checkout.ResubmitWindow)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.Len(t, cfg.Seed, 1)
	assert.Equal(t, "wheat-seeds", cfg.Seed[0].Slug)
}

func TestLoad_DotEnv(t *testing.T) {
	envPath := writeFile(t, ".env", "STORAGE_DRIVER=memory\nSESSION_TTL=2h\n")
	t.Cleanup(func() {
		os.Unsetenv("STORAGE_DRIVER")
		os.Unsetenv("SESSION_TTL")
	})

	cfg, err := config.Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, config.StorageDriverMemory, cfg.Storage)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
}

func TestLoad_MissingFilesAreIgnored(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "postgres_without_user",
			env:     map[string]string{"STORAGE_DRIVER": "postgres", "DB_NAME": "x"},
			wantErr: "DB_USER is required",
		},
		{
			name:    "unknown_driver",
			env:     map[string]string{"STORAGE_DRIVER": "sqlite"},
			wantErr: `unknown storage driver "sqlite"`,
		},
		{
			name:    "unknown_stock_policy",
			env:     map[string]string{"STORAGE_DRIVER": "memory", "CHECKOUT_STOCK_POLICY": "yolo"},
			wantErr: `unknown checkout stock policy "yolo"`,
		},
		{
			name:    "negative_tax_rate",
			env:     map[string]string{"STORAGE_DRIVER": "memory", "PRICING_TAX_RATE": "-0.1"},
			wantErr: "pricing tax_rate must not be negative",
		},
		{
			name:    "bad_shipping_fee",
			env:     map[string]string{"STORAGE_DRIVER": "memory", "PRICING_SHIPPING_FEE": "ten"},
			wantErr: `invalid pricing shipping_fee "ten"`,
		},
		{
			name:    "bad_session_ttl",
			env:     map[string]string{"STORAGE_DRIVER": "memory", "SESSION_TTL": "forever"},
			wantErr: `invalid SESSION_TTL "forever"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("", "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
