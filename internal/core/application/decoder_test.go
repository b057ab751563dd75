package application_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/cyphereco/openturnkey/internal/core/domain"
	cborcodec "github.com/cyphereco/openturnkey/internal/infrastructure/codec/cbor"
	"github.com/stretchr/testify/require"
)

const testSessionID = 4242

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	codec, err := cborcodec.NewCodec()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		buf, err := application.EncodeRequest(codec, domain.Request{
			SessionID: testSessionID,
			RequestID: 7,
			Command:   domain.CmdSign,
			Data:      "abcd",
			Options:   domain.Options{UseMasterKey: true, More: true},
		}, "1234")
		require.NoError(t, err)

		req, err := application.DecodeRequest(codec, buf, testSessionID)
		require.NoError(t, err)
		require.Equal(t, &domain.Request{
			SessionID: testSessionID,
			RequestID: 7,
			Command:   domain.CmdSign,
			Data:      "abcd",
			Options: domain.Options{
				Pin:          1234,
				HasPin:       true,
				UseMasterKey: true,
				More:         true,
			},
		}, req)
	})

	t.Run("data dropped for commands without data", func(t *testing.T) {
		buf, err := application.EncodeRequest(codec, domain.Request{
			SessionID: testSessionID,
			RequestID: 1,
			Command:   domain.CmdShowKey,
			Data:      "ignored",
		}, "")
		require.NoError(t, err)

		req, err := application.DecodeRequest(codec, buf, testSessionID)
		require.NoError(t, err)
		require.Empty(t, req.Data)
		require.False(t, req.Options.HasPin)
	})

	t.Run("mandatory records only", func(t *testing.T) {
		buf, err := codec.Encode([][]byte{
			[]byte("4242"), []byte("3"), []byte("167"),
		})
		require.NoError(t, err)

		req, err := application.DecodeRequest(codec, buf, testSessionID)
		require.NoError(t, err)
		require.Equal(t, domain.CmdCancel, req.Command)
	})
}

func TestFailingDecodeRequest(t *testing.T) {
	t.Parallel()

	codec, err := cborcodec.NewCodec()
	require.NoError(t, err)

	encode := func(records ...string) []byte {
		r := make([][]byte, 0, len(records))
		for _, s := range records {
			r = append(r, []byte(s))
		}
		buf, err := codec.Encode(r)
		require.NoError(t, err)
		return buf
	}

	tests := []struct {
		name     string
		buf      []byte
		expected error
	}{
		{"empty", nil, domain.ErrEmptyRequest},
		{"too large", bytes.Repeat([]byte{0}, domain.MaxRequestSize), domain.ErrRequestTooLarge},
		{"malformed", []byte{0xff, 0x00}, application.ErrMalformedRecords},
		{"too many records", encode("4242", "1", "160", "", "", ""), domain.ErrTooManyRecords},
		{"missing records", encode("4242", "1"), domain.ErrMissingRecords},
		{"session mismatch", encode("4243", "1", "160"), domain.ErrInvalidSessionID},
		{"non numeric session", encode("abc", "1", "160"), domain.ErrInvalidSessionID},
		{"zero request id", encode("4242", "0", "160"), domain.ErrInvalidRequestID},
		{"command out of range", encode("4242", "1", "170"), domain.ErrInvalidCommand},
		{"data too large", encode("4242", "1", "163", strings.Repeat("a", domain.MaxDataSize+1)), domain.ErrRequestTooLarge},
		{"options too large", encode("4242", "1", "163", "", strings.Repeat("a", domain.MaxOptionsSize+1)), domain.ErrRequestTooLarge},
	}

	for _, tt := range tests {
		_, err := application.DecodeRequest(codec, tt.buf, testSessionID)
		require.ErrorIs(t, err, tt.expected, tt.name)
	}
}
