package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cyphereco/openturnkey/internal/config"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	datadir := t.TempDir()
	t.Setenv("OTK_DATADIR", datadir)
	t.Setenv("OTK_NETWORK", "testnet")
	t.Setenv("OTK_STANDBY_TIMEOUT", "30s")
	t.Setenv("OTK_PROVISION_SEED", "000102030405060708090a0b0c0d0e0f")
	t.Setenv("OTK_PROVISION_PATH", "m/0/1/2/3/4")

	require.NoError(t, config.InitConfig())
	require.Equal(t, datadir, config.GetDatadir())
	require.Equal(t, &chaincfg.TestNet3Params, config.GetNetwork())
	require.Equal(t, 30*time.Second, config.GetDuration(config.StandbyTimeoutKey))
	require.Equal(t, 8, config.GetInt(config.TaskQueueCapacityKey))
	require.Len(t, config.GetProvisionSeed(), 16)
	require.Equal(t, hdkey.DerivationPath{0, 1, 2, 3, 4}, config.GetProvisionPath())
	require.DirExists(t, filepath.Join(datadir, config.DbLocation))
	require.DirExists(t, filepath.Join(datadir, config.FpsLocation))
}

func TestFailingInitConfig(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown network", "OTK_NETWORK", "regtest"},
		{"non positive standby", "OTK_STANDBY_TIMEOUT", "0s"},
		{"too few captures", "OTK_FPS_CAPTURE_COUNT", "2"},
		{"battery out of range", "OTK_BATTERY_MILLIVOLTS", "5000"},
		{"short seed", "OTK_PROVISION_SEED", "0001"},
		{"non hex seed", "OTK_PROVISION_SEED", "zz"},
		{"short path", "OTK_PROVISION_PATH", "m/0/1"},
		{"hardened path", "OTK_PROVISION_PATH", "m/0/1/2/3/4'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTK_DATADIR", t.TempDir())
			t.Setenv(tt.key, tt.value)
			require.Error(t, config.InitConfig())
		})
	}
}
