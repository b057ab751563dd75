package hdkey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// HardenedKeyStart is the index from which children are derived with the
	// parent private key.
	HardenedKeyStart = uint32(0x80000000)
	// MinSeedBytes is the minimum number of bytes accepted as seed.
	MinSeedBytes = 16
	// MaxSeedBytes is the maximum number of bytes accepted as seed.
	MaxSeedBytes = 64
	// RecommendedSeedLen is the length of the seeds generated on device.
	RecommendedSeedLen = 64

	ChainCodeSize  = 32
	PrivateKeySize = 32
	PublicKeySize  = 33
	HashSize       = 32
)

var (
	// ErrInvalidSeedLen ...
	ErrInvalidSeedLen = fmt.Errorf(
		"seed length must be between %d and %d bytes", MinSeedBytes, MaxSeedBytes,
	)
	// ErrInvalidPrivateKey is returned when a scalar is zero or not lower than
	// the curve order.
	ErrInvalidPrivateKey = errors.New("private key is not a valid curve scalar")
	// ErrInvalidPublicKey ...
	ErrInvalidPublicKey = errors.New("public key is not a valid compressed point")
	// ErrDerivedKeyOutOfRange is returned when the child key is zero or the
	// intermediate value overflows the curve order.
	ErrDerivedKeyOutOfRange = errors.New("derived key is out of range")
	// ErrHardenedDerivationForbidden ...
	ErrHardenedDerivationForbidden = errors.New("hardened derivation is forbidden")
	// ErrInvalidNode ...
	ErrInvalidNode = errors.New("node is not valid")
	// ErrMaxDepthExceeded ...
	ErrMaxDepthExceeded = errors.New("node depth cannot exceed 255")
	// ErrInvalidDerivationPathLength ...
	ErrInvalidDerivationPathLength = fmt.Errorf(
		"derivation path must contain exactly %d indexes", PathDepth,
	)
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New("derivation path is malformed")
	// ErrInvalidHashLen ...
	ErrInvalidHashLen = fmt.Errorf("hash must be %d bytes long", HashSize)
	// ErrInvalidExtendedKey ...
	ErrInvalidExtendedKey = errors.New("extended key is malformed")
	// ErrUnknownNetwork ...
	ErrUnknownNetwork = errors.New("unknown network")
)

// ParseNetwork returns the chain params for the given network name, either
// mainnet or testnet.
func ParseNetwork(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", chaincfg.MainNetParams.Name:
		return &chaincfg.MainNetParams, nil
	case "testnet", chaincfg.TestNet3Params.Name:
		return &chaincfg.TestNet3Params, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
}
