package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cyphereco/openturnkey/pkg/hdkey"
)

const (
	// MaxRecordCount is the max number of records of a request.
	MaxRecordCount = 5
	// MaxRequestSize is the exclusive upper bound of an encoded request.
	MaxRequestSize = 1536
	// MaxDataSize is the max length of the data record.
	MaxDataSize = 1534
	// MaxOptionsSize is the max length of the options record.
	MaxOptionsSize = 62

	optionPin  = "pin"
	optionKey  = "key"
	optionMore = "more"
)

// Request is a decoded and bounds-checked reader request.
type Request struct {
	SessionID uint32
	RequestID uint32
	Command   Command
	Data      string
	Options   Options
}

// Options are the parsed key=value pairs of the options record.
type Options struct {
	// Pin is meaningful only if HasPin is true. A malformed pin value is
	// mapped to DefaultPin, that never matches a stored PIN.
	Pin          uint32
	HasPin       bool
	UseMasterKey bool
	More         bool
}

// ParseOptions parses a comma separated list of key=value pairs. Unknown
// keys and entries without a '=' are ignored.
func ParseOptions(str string) (Options, error) {
	opts := Options{}
	if len(str) > MaxOptionsSize {
		return opts, fmt.Errorf(
			"%w: options exceed %d bytes", ErrRequestTooLarge, MaxOptionsSize,
		)
	}

	for _, entry := range strings.Split(str, ",") {
		kv := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])

		switch key {
		case optionPin:
			opts.HasPin = true
			pin, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				opts.Pin = DefaultPin
				continue
			}
			opts.Pin = uint32(pin)
		case optionKey:
			opts.UseMasterKey = value == "1"
		case optionMore:
			opts.More = value == "1"
		}
	}
	return opts, nil
}

// String renders the options back to their wire form, the pin is omitted.
func (o Options) String() string {
	parts := make([]string, 0, 2)
	if o.UseMasterKey {
		parts = append(parts, optionKey+"=1")
	}
	if o.More {
		parts = append(parts, optionMore+"=1")
	}
	return strings.Join(parts, ",")
}

// ParseCheckedNumber parses a decimal string whose last character repeats
// its first one. The returned value is the string without the trailing
// check character.
func ParseCheckedNumber(str string) (uint32, error) {
	str = strings.TrimSpace(str)
	if len(str) < 2 {
		return 0, fmt.Errorf("%q is too short", str)
	}
	for _, c := range str {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q is not a decimal number", str)
		}
	}
	if str[0] != str[len(str)-1] {
		return 0, fmt.Errorf("%q fails check digit", str)
	}

	value, err := strconv.ParseUint(str[:len(str)-1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range", str)
	}
	return uint32(value), nil
}

// ParseCheckedPin parses a check digit encoded PIN for a SetPin request.
func ParseCheckedPin(str string) (uint32, error) {
	pin, err := ParseCheckedNumber(str)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPin, err)
	}
	if pin == DefaultPin {
		return 0, fmt.Errorf("%w: reserved value", ErrInvalidPin)
	}
	return pin, nil
}

// ParseCheckedKeyPath parses the comma separated, check digit encoded indices
// of a SetKey request. A zero index is replaced with a random non-hardened
// one.
func ParseCheckedKeyPath(str string) (hdkey.DerivationPath, error) {
	fields := strings.Split(str, ",")
	if len(fields) != hdkey.PathDepth {
		return nil, fmt.Errorf(
			"%w: expected %d indexes, got %d",
			ErrInvalidKeyPath, hdkey.PathDepth, len(fields),
		)
	}

	path := make(hdkey.DerivationPath, 0, hdkey.PathDepth)
	for _, field := range fields {
		index, err := ParseCheckedNumber(field)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidKeyPath, err)
		}
		if index == 0 {
			if index, err = hdkey.RandomIndex(); err != nil {
				return nil, err
			}
		}
		path = append(path, index)
	}
	return path, nil
}
