package hdkey

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// PathDepth is the number of indexes of a device derivation path.
const PathDepth = 5

// DerivationPath is the internal representation of the path that leads from
// the master node to the derivative one.
type DerivationPath []uint32

// ParseDerivationPath converts a derivation path string to the internal
// binary representation. Both "m/0/1/2/3/4" and relative "0/1/2/3/4" forms
// are accepted, and an index suffixed with "'" is hardened.
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	var path DerivationPath

	elems := strings.Split(strPath, "/")
	switch {
	case strings.TrimSpace(strPath) == "":
		return nil, ErrNullDerivationPath
	case containsEmptyString(elems):
		return nil, ErrMalformedDerivationPath
	case strings.TrimSpace(elems[0]) == "m":
		elems = elems[1:]
	}
	if len(elems) == 0 {
		return nil, ErrMalformedDerivationPath
	}

	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") {
			value = HardenedKeyStart
			elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))
		}

		bigval, ok := new(big.Int).SetString(elem, 10)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

// RandomDerivationPath returns a path of PathDepth random non-hardened
// indexes.
func RandomDerivationPath() (DerivationPath, error) {
	path := make(DerivationPath, PathDepth)
	for i := range path {
		index, err := RandomIndex()
		if err != nil {
			return nil, err
		}
		path[i] = index
	}
	return path, nil
}

// RandomIndex returns a random non-hardened child index.
func RandomIndex() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]) % HardenedKeyStart, nil
}

// String renders the path with raw decimal indexes, hardened ones included,
// ie. m/2147483692/0/1/2/3.
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	result := "m"
	for _, component := range path {
		result = fmt.Sprintf("%s/%d", result, component)
	}
	return result
}

// HasHardened returns whether any index of the path is hardened.
func (path DerivationPath) HasHardened() bool {
	for _, component := range path {
		if component >= HardenedKeyStart {
			return true
		}
	}
	return false
}

// Copy returns a copy of the path.
func (path DerivationPath) Copy() DerivationPath {
	return append(DerivationPath{}, path...)
}

func (path DerivationPath) validate(allowHardened bool) error {
	if len(path) != PathDepth {
		return ErrInvalidDerivationPathLength
	}
	if !allowHardened && path.HasHardened() {
		return ErrHardenedDerivationForbidden
	}
	return nil
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if strings.TrimSpace(s) == "" {
			return true
		}
	}
	return false
}
