package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"torchverso/config"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg := config.LoadConfig()
	require.Equal(t, "8080", cfg.ServerPort)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Contains(t, cfg.PostgresConnStr(), "dbname=torchverso")
}

func TestLoadTuning(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, tu config.Tuning)
	}{
		{
			name: "Partial file keeps defaults",
			yaml: "publish_interval_ms: 50\nstarting_wallet: 10000\n",
			check: func(t *testing.T, tu config.Tuning) {
				require.Equal(t, 50*time.Millisecond, tu.PublishInterval())
				require.Equal(t, 10000, tu.StartingWallet)
				require.Equal(t, 3, tu.CitySize)
				require.Equal(t, time.Minute, tu.ExpiryInterval())
			},
		},
		{
			name:    "Broken yaml",
			yaml:    "city_size: [",
			wantErr: true,
		},
		{
			name:    "Negative interpolation",
			yaml:    "interpolation: -1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tuning.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			tu, err := config.LoadTuning(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, tu)
		})
	}
}

func TestLoadTuning_EmptyPath(t *testing.T) {
	tu, err := config.LoadTuning("")
	require.NoError(t, err)
	require.Equal(t, config.DefaultTuning(), tu)
	require.Equal(t, 50*time.Millisecond, tu.TickInterval())
}

func TestNewLogger(t *testing.T) {
	logger, err := config.NewLogger("debug", "json")
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger, err = config.NewLogger("nonsense", "console")
	require.NoError(t, err)
	require.NotNil(t, logger)
}
