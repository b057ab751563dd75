package application_test

import (
	"testing"

	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestMintInfo(t *testing.T) {
	t.Parallel()

	info := application.MintInfo("42", "1HZwkjkeaoZ", 3700, "hello")
	require.Equal(t,
		"Key Mint: Cyphereco OU\r\n"+
			"Mint Date: 2019/06/09\r\n"+
			"H/W Version: 1.2\r\n"+
			"F/W Version: 1.1.42\r\n"+
			"Serial No.: 1HZwkjkeaoZ\r\n"+
			"Battery Level: 50% / 3700 mV\r\n"+
			"Note: \r\nhello",
		info,
	)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	records := [][]byte{
		[]byte(application.AppURI),
		[]byte("mint"),
		[]byte("0201A300"),
		[]byte("02abcd"),
		[]byte("<Session_ID>\r\n1\r\n<Request_Signature>\r\n00\n11\r\n"),
		[]byte("00"),
	}
	resp, err := application.ParseResponse(records)
	require.NoError(t, err)
	require.Equal(t, domain.StateWord{
		Lock:    domain.Authorized,
		Exec:    domain.ExecSuccess,
		Command: domain.CmdSign,
	}, resp.State)
	require.Equal(t, map[string]string{
		application.LabelSessionID:        "1",
		application.LabelRequestSignature: "00\n11",
	}, resp.SessionFields())
	require.False(t, resp.VerifySessionSignature())

	_, err = resp.Signatures()
	require.ErrorIs(t, err, application.ErrInvalidResponse)

	_, err = application.ParseResponse(records[:5])
	require.ErrorIs(t, err, application.ErrInvalidResponse)

	records[2] = []byte("state")
	_, err = application.ParseResponse(records)
	require.ErrorIs(t, err, application.ErrInvalidResponse)
}
