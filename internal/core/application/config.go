package application

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/internal/core/ports"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
)

const (
	// MinEnrollCaptures and MaxEnrollCaptures bound EnrollPolicy.Captures.
	MinEnrollCaptures = 3
	MaxEnrollCaptures = 5

	defaultResetHoldDuration = 3 * time.Second
)

// Config holds the collaborators and policies of a Device. The collaborators
// outlive the device, a new Device is created at every boot.
type Config struct {
	Repository domain.KeyRecordRepository
	Transport  ports.Transport
	Codec      ports.RecordCodec
	Biometric  ports.Biometric
	Battery    ports.Battery
	Power      ports.PowerManager
	Metrics    *Metrics

	Network                 *chaincfg.Params
	AllowHardenedDerivation bool
	StandbyTimeout          time.Duration
	TaskQueueCapacity       int
	ResetHoldDuration       time.Duration
	EnrollPolicy            ports.EnrollPolicy
	MatchPolicy             ports.MatchPolicy
	FirmwareBuild           string

	// ProvisionSeed and ProvisionPath are used at first boot. Random ones
	// are generated if not defined.
	ProvisionSeed []byte
	ProvisionPath hdkey.DerivationPath
}

// Validate returns an error if any collaborator is missing or any policy is
// out of range.
func (c *Config) Validate() error {
	if c.Repository == nil {
		return ErrNilRepository
	}
	if c.Transport == nil {
		return ErrNilTransport
	}
	if c.Codec == nil {
		return ErrNilCodec
	}
	if c.Biometric == nil {
		return ErrNilBiometric
	}
	if c.Battery == nil {
		return ErrNilBattery
	}
	if c.Power == nil {
		return ErrNilPowerManager
	}
	if c.Network == nil {
		return ErrNilNetwork
	}
	if c.StandbyTimeout <= 0 {
		return ErrInvalidStandbyTimeout
	}
	if c.TaskQueueCapacity <= 0 {
		return ErrInvalidQueueCapacity
	}
	if c.EnrollPolicy.Captures < MinEnrollCaptures ||
		c.EnrollPolicy.Captures > MaxEnrollCaptures {
		return ErrInvalidEnrollPolicy
	}
	return nil
}

func (c *Config) resetHoldDuration() time.Duration {
	if c.ResetHoldDuration <= 0 {
		return defaultResetHoldDuration
	}
	return c.ResetHoldDuration
}

func (c *Config) metrics() *Metrics {
	if c.Metrics == nil {
		c.Metrics, _ = NewMetrics(nil)
	}
	return c.Metrics
}
