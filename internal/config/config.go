package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/cyphereco/openturnkey/internal/infrastructure/battery"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the key record and
	// the fingerprint templates
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the bitcoin network used to serialize keys and addresses,
	// either mainnet or testnet
	NetworkKey = "NETWORK"
	// AllowHardenedDerivationKey enables hardened indexes in the derivation
	// path of the device key
	AllowHardenedDerivationKey = "ALLOW_HARDENED_DERIVATION"
	// StandbyTimeoutKey is the idle time after which the device shuts down
	StandbyTimeoutKey = "STANDBY_TIMEOUT"
	// TaskQueueCapacityKey is the size of the device event queue
	TaskQueueCapacityKey = "TASK_QUEUE_CAPACITY"
	// ResetHoldDurationKey is how long the sensor must be touched to confirm
	// a factory reset
	ResetHoldDurationKey = "RESET_HOLD_DURATION"
	// FpsCaptureCountKey is the number of captures of a fingerprint enrollment
	FpsCaptureCountKey = "FPS_CAPTURE_COUNT"
	// FpsCaptureTimeoutKey bounds the wait for every enrollment capture
	FpsCaptureTimeoutKey = "FPS_CAPTURE_TIMEOUT"
	// FpsMatchTimeoutKey bounds the wait for a fingerprint match
	FpsMatchTimeoutKey = "FPS_MATCH_TIMEOUT"
	// FpsMaxUsersKey is the max number of enrolled fingerprints
	FpsMaxUsersKey = "FPS_MAX_USERS"
	// BatteryMillivoltsKey is the voltage reported by the simulated battery
	BatteryMillivoltsKey = "BATTERY_MILLIVOLTS"
	// FirmwareBuildKey is the build number reported in the mint information
	FirmwareBuildKey = "FIRMWARE_BUILD"
	// ProvisionSeedKey is the hex encoded seed used at first boot. A random
	// one is generated if not set
	ProvisionSeedKey = "PROVISION_SEED"
	// ProvisionPathKey is the derivation path used at first boot, ie.
	// m/0/1/2/3/4. A random one is generated if not set
	ProvisionPathKey = "PROVISION_PATH"
	// ListeningPortKey is the port where the tag emulation, the sensor
	// simulation and the metrics are served
	ListeningPortKey = "LISTEN_PORT"
	// ReaderFrameRateKey is the max number of APDUs per second accepted
	// from a reader
	ReaderFrameRateKey = "READER_FRAME_RATE"
	// EnableStatsKey enables the periodic logging of the device counters
	EnableStatsKey = "ENABLE_STATS"
	// StatsIntervalKey defines interval for printing basic device statistics
	StatsIntervalKey = "STATS_INTERVAL"

	DbLocation  = "db"
	FpsLocation = "fps"

	mainnet = "mainnet"
	testnet = "testnet"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("openturnkey", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("OTK")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, mainnet)
	vip.SetDefault(AllowHardenedDerivationKey, false)
	vip.SetDefault(StandbyTimeoutKey, 15*time.Second)
	vip.SetDefault(TaskQueueCapacityKey, 8)
	vip.SetDefault(ResetHoldDurationKey, 3*time.Second)
	vip.SetDefault(FpsCaptureCountKey, 3)
	vip.SetDefault(FpsCaptureTimeoutKey, 5*time.Second)
	vip.SetDefault(FpsMatchTimeoutKey, 5*time.Second)
	vip.SetDefault(FpsMaxUsersKey, 1)
	vip.SetDefault(BatteryMillivoltsKey, 3900)
	vip.SetDefault(FirmwareBuildKey, "0")
	vip.SetDefault(ListeningPortKey, 9455)
	vip.SetDefault(ReaderFrameRateKey, 50)
	vip.SetDefault(EnableStatsKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetNetwork() *chaincfg.Params {
	net, _ := hdkey.ParseNetwork(GetString(NetworkKey))
	return net
}

// GetProvisionSeed returns the configured seed, nil if not set.
func GetProvisionSeed() []byte {
	seed, _ := hex.DecodeString(GetString(ProvisionSeedKey))
	return seed
}

// GetProvisionPath returns the configured derivation path, nil if not set.
func GetProvisionPath() hdkey.DerivationPath {
	str := GetString(ProvisionPathKey)
	if str == "" {
		return nil
	}
	path, _ := hdkey.ParseDerivationPath(str)
	return path
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, err := hdkey.ParseNetwork(GetString(NetworkKey)); err != nil {
		return fmt.Errorf("%s must be either %s or %s", NetworkKey, mainnet, testnet)
	}

	if GetDuration(StandbyTimeoutKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", StandbyTimeoutKey)
	}
	if GetInt(TaskQueueCapacityKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", TaskQueueCapacityKey)
	}

	captures := GetInt(FpsCaptureCountKey)
	if captures < application.MinEnrollCaptures ||
		captures > application.MaxEnrollCaptures {
		return fmt.Errorf(
			"%s must be in range [%d, %d]", FpsCaptureCountKey,
			application.MinEnrollCaptures, application.MaxEnrollCaptures,
		)
	}
	if GetInt(FpsMaxUsersKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", FpsMaxUsersKey)
	}

	mv := GetInt(BatteryMillivoltsKey)
	if mv < battery.MinMillivolts || mv > battery.MaxMillivolts {
		return fmt.Errorf(
			"%s must be in range [%d, %d]", BatteryMillivoltsKey,
			battery.MinMillivolts, battery.MaxMillivolts,
		)
	}

	if GetInt(ReaderFrameRateKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", ReaderFrameRateKey)
	}

	if str := GetString(ProvisionSeedKey); str != "" {
		seed, err := hex.DecodeString(str)
		if err != nil {
			return fmt.Errorf("%s must be in hex format", ProvisionSeedKey)
		}
		if len(seed) < hdkey.MinSeedBytes || len(seed) > hdkey.MaxSeedBytes {
			return fmt.Errorf(
				"%s must be %d to %d bytes long", ProvisionSeedKey,
				hdkey.MinSeedBytes, hdkey.MaxSeedBytes,
			)
		}
	}
	if str := GetString(ProvisionPathKey); str != "" {
		path, err := hdkey.ParseDerivationPath(str)
		if err != nil {
			return fmt.Errorf("invalid %s: %s", ProvisionPathKey, err)
		}
		if len(path) != hdkey.PathDepth {
			return fmt.Errorf("%s must have %d indexes", ProvisionPathKey, hdkey.PathDepth)
		}
		if path.HasHardened() && !GetBool(AllowHardenedDerivationKey) {
			return fmt.Errorf(
				"%s contains hardened indexes but %s is not enabled",
				ProvisionPathKey, AllowHardenedDerivationKey,
			)
		}
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	for _, dir := range []string{DbLocation, FpsLocation} {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, dir)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
