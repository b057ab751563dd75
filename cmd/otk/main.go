package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/cyphereco/openturnkey/internal/core/ports"
	cborcodec "github.com/cyphereco/openturnkey/internal/infrastructure/codec/cbor"
	wstransport "github.com/cyphereco/openturnkey/internal/infrastructure/transport/websocket"
	"github.com/cyphereco/openturnkey/pkg/circuitbreaker"
	"github.com/sony/gobreaker"
	"github.com/urfave/cli/v2"
)

const (
	defaultNfcURL = "ws://localhost:9455/nfc"
	defaultFpsURL = "http://localhost:9455/fps"
	dialTimeout   = 10 * time.Second
	dialAttempts  = 5
	dialRetryWait = 500 * time.Millisecond
)

var (
	nfcURLFlag = &cli.StringFlag{
		Name:    "nfc-url",
		Usage:   "websocket url of the device tag emulation",
		Value:   defaultNfcURL,
		EnvVars: []string{"OTK_NFC_URL"},
	}
	fpsURLFlag = &cli.StringFlag{
		Name:    "fps-url",
		Usage:   "http url of the simulated fingerprint sensor",
		Value:   defaultFpsURL,
		EnvVars: []string{"OTK_FPS_URL"},
	}
)

func main() {
	app := cli.NewApp()

	app.Version = "0.0.1"
	app.Name = "otk"
	app.Usage = "Command line reader for OpenTurnKey devices"
	app.Flags = []cli.Flag{nfcURLFlag, fpsURLFlag}
	app.Commands = append(
		app.Commands,
		&read,
		&touch,
		&release,
		&sensor,
	)
	app.Commands = append(app.Commands, requestCommands()...)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

// session is a reader in the field of the device.
type session struct {
	reader *wstransport.Reader
	codec  ports.RecordCodec
	last   *application.Response
}

func enterField(ctx *cli.Context) (*session, func(), error) {
	dialCtx, cancel := context.WithTimeout(ctx.Context, dialTimeout)
	defer cancel()

	reader, err := dial(dialCtx, ctx.String(nfcURLFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	codec, err := cborcodec.NewCodec()
	if err != nil {
		reader.Close()
		return nil, nil, err
	}

	s := &session{reader: reader, codec: codec}
	cleanup := func() { reader.Close() }
	return s, cleanup, nil
}

// dial retries to enter the field while the device is busy or waking up,
// until the breaker opens.
func dial(ctx context.Context, url string) (*wstransport.Reader, error) {
	cb := circuitbreaker.NewCircuitBreaker("nfc-dial", dialAttempts)

	var lastErr error
	for {
		iReader, err := cb.Execute(func() (interface{}, error) {
			return wstransport.Dial(ctx, url)
		})
		if err == nil {
			return iReader.(*wstransport.Reader), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, lastErr
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(dialRetryWait):
		}
	}
}

// read reads and verifies the payload currently served by the device.
func (s *session) read() (*application.Response, error) {
	payload, err := s.reader.ReadPayload()
	if err != nil {
		return nil, err
	}
	records, err := s.codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	resp, err := application.ParseResponse(records)
	if err != nil {
		return nil, err
	}
	if !resp.VerifySessionSignature() {
		return nil, fmt.Errorf("session signature does not verify")
	}
	s.last = resp
	return resp, nil
}

func (s *session) sessionID() (uint32, error) {
	if s.last == nil {
		return 0, fmt.Errorf("payload not read yet")
	}
	id, err := strconv.ParseUint(
		s.last.SessionFields()[application.LabelSessionID], 10, 32,
	)
	if err != nil {
		return 0, fmt.Errorf("invalid session id: %w", err)
	}
	return uint32(id), nil
}

func printJSON(v interface{}) {
	buf, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		fmt.Println("unable to encode response: ", err)
		return
	}
	fmt.Println(string(buf))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[otk] %v\n", err)
	os.Exit(1)
}
