package domain_test

import (
	"strings"
	"testing"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		str      string
		expected domain.Options
	}{
		{"empty", "", domain.Options{}},
		{"pin", "pin=1234", domain.Options{Pin: 1234, HasPin: true}},
		{
			"all",
			"pin=99,key=1,more=1",
			domain.Options{Pin: 99, HasPin: true, UseMasterKey: true, More: true},
		},
		{"spaces", " key = 1 , more=0", domain.Options{UseMasterKey: true}},
		{"unknown keys", "foo=bar,baz,key=1", domain.Options{UseMasterKey: true}},
		{
			"malformed pin",
			"pin=12ab",
			domain.Options{Pin: domain.DefaultPin, HasPin: true},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			opts, err := domain.ParseOptions(tt.str)
			require.NoError(t, err)
			require.Equal(t, tt.expected, opts)
		})
	}
}

func TestFailingParseOptions(t *testing.T) {
	t.Parallel()

	_, err := domain.ParseOptions("pin=" + strings.Repeat("1", domain.MaxOptionsSize))
	require.ErrorIs(t, err, domain.ErrRequestTooLarge)
}

func TestParseCheckedNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		str      string
		expected uint32
		valid    bool
	}{
		{"11", 1, true},
		{"12341", 1234, true},
		{"99", 9, true},
		{"00", 0, true},
		{"42949672954", 4294967295, true},
		{"1", 0, false},
		{"", 0, false},
		{"1234", 0, false},
		{"1a1", 0, false},
		{"-1-", 0, false},
		{"42949672964", 0, false},
	}

	for _, tt := range tests {
		value, err := domain.ParseCheckedNumber(tt.str)
		if !tt.valid {
			require.Error(t, err, tt.str)
			continue
		}
		require.NoError(t, err, tt.str)
		require.Equal(t, tt.expected, value, tt.str)
	}
}

func TestParseCheckedPin(t *testing.T) {
	t.Parallel()

	pin, err := domain.ParseCheckedPin("56785")
	require.NoError(t, err)
	require.Equal(t, uint32(5678), pin)

	_, err = domain.ParseCheckedPin("56786")
	require.ErrorIs(t, err, domain.ErrInvalidPin)

	_, err = domain.ParseCheckedPin("42949672954")
	require.ErrorIs(t, err, domain.ErrInvalidPin)
}

func TestParseCheckedKeyPath(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		path, err := domain.ParseCheckedKeyPath("11,22,33,44,55")
		require.NoError(t, err)
		require.Equal(t, hdkey.DerivationPath{1, 2, 3, 4, 5}, path)
	})

	t.Run("zero index is randomized", func(t *testing.T) {
		path, err := domain.ParseCheckedKeyPath("00,11,00,11,11")
		require.NoError(t, err)
		require.Len(t, path, hdkey.PathDepth)
		require.False(t, path.HasHardened())
		require.Equal(t, uint32(1), path[1])
	})

	t.Run("invalid", func(t *testing.T) {
		for _, str := range []string{
			"",
			"11,22,33,44",
			"11,22,33,44,55,66",
			"11,22,33,44,56",
			"11,22,,44,55",
		} {
			_, err := domain.ParseCheckedKeyPath(str)
			require.ErrorIs(t, err, domain.ErrInvalidKeyPath, str)
		}
	})
}
