package application_test

import (
	"context"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/internal/core/ports"
	cborcodec "github.com/cyphereco/openturnkey/internal/infrastructure/codec/cbor"
	badgerstore "github.com/cyphereco/openturnkey/internal/infrastructure/storage/badger"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testPin      = 1234
	waitTimeout  = 2 * time.Second
	quietTimeout = 150 * time.Millisecond
)

var (
	ctx = context.Background()

	testSeed, _ = hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	testPath    = hdkey.DerivationPath{0, 1, 2, 3, 4}
	testNetwork = &chaincfg.MainNetParams
)

type testDevice struct {
	*application.Device
	t *testing.T

	cfg       application.Config
	codec     ports.RecordCodec
	repo      domain.KeyRecordRepository
	transport *fakeTransport
	biometric *mockBiometric
	power     *mockPowerManager

	cancel    context.CancelFunc
	halt      chan application.Halt
	halted    bool
	sessionID uint32
	requestID uint32
}

type testDeviceOpts struct {
	// users is the number of enrolled fingerprints, > 0 boots a locked
	// device.
	users int
	// record is stored before boot if not nil.
	record *domain.KeyRecord
	// biometric replaces the default mock if not nil.
	biometric *mockBiometric
	config    func(cfg *application.Config)
}

func newTestKeyRecord(t *testing.T, pin uint32) *domain.KeyRecord {
	record, err := domain.NewKeyRecord(testSeed, testPath, false)
	require.NoError(t, err)
	if pin != domain.DefaultPin {
		require.NoError(t, record.SetPin(pin))
	}
	return record
}

// startTestDevice boots a device with an in-memory store and the cbor codec
// and consumes its boot payload.
func startTestDevice(t *testing.T, opts testDeviceOpts) *testDevice {
	codec, err := cborcodec.NewCodec()
	require.NoError(t, err)
	repo, err := badgerstore.NewKeyRecordStore("", nil)
	require.NoError(t, err)
	if opts.record != nil {
		require.NoError(t, repo.AddKeyRecord(ctx, opts.record))
	}

	biometric := opts.biometric
	if biometric == nil {
		biometric = &mockBiometric{}
	}
	biometric.On("UserCount").Return(opts.users, nil)

	battery := &mockBattery{}
	battery.On("Millivolts").Return(3900, nil)

	power := &mockPowerManager{}
	power.On("Shutdown", mock.Anything).Return()
	power.On("Reboot").Return()

	transport := newFakeTransport()
	cfg := application.Config{
		Repository:        repo,
		Transport:         transport,
		Codec:             codec,
		Biometric:         biometric,
		Battery:           battery,
		Power:             power,
		Network:           testNetwork,
		StandbyTimeout:    10 * time.Second,
		TaskQueueCapacity: 8,
		ResetHoldDuration: 100 * time.Millisecond,
		EnrollPolicy: ports.EnrollPolicy{
			Captures:       3,
			CaptureTimeout: time.Second,
			MaxUsers:       1,
		},
		MatchPolicy: ports.MatchPolicy{
			MinMatches: 1,
			Timeout:    time.Second,
		},
		FirmwareBuild: "test",
		ProvisionSeed: testSeed,
		ProvisionPath: testPath,
	}
	if opts.config != nil {
		opts.config(&cfg)
	}

	device, err := application.NewDevice(cfg)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	td := &testDevice{
		Device:    device,
		t:         t,
		cfg:       cfg,
		codec:     codec,
		repo:      repo,
		transport: transport,
		biometric: biometric,
		power:     power,
		cancel:    cancel,
		halt:      make(chan application.Halt, 1),
	}
	go func() {
		td.halt <- device.Run(runCtx)
	}()
	t.Cleanup(td.close)

	boot := td.nextResponse()
	sessionID, err := strconv.ParseUint(
		boot.SessionFields()[application.LabelSessionID], 10, 32,
	)
	require.NoError(t, err)
	require.NotZero(t, sessionID)
	td.sessionID = uint32(sessionID)

	require.NoError(t, td.FieldOn())
	return td
}

func (td *testDevice) close() {
	td.cancel()
	if !td.halted {
		select {
		case <-td.halt:
		case <-time.After(waitTimeout):
			td.t.Error("device did not halt")
		}
	}
	td.repo.Close()
}

// request reads the current payload, writes the request and returns the
// reply.
func (td *testDevice) request(
	cmd domain.Command, data, pin string, opts domain.Options,
) *application.Response {
	td.requestID++
	return td.write(domain.Request{
		SessionID: td.sessionID,
		RequestID: td.requestID,
		Command:   cmd,
		Data:      data,
		Options:   opts,
	}, pin)
}

func (td *testDevice) write(
	req domain.Request, pin string,
) *application.Response {
	td.writeOnly(req, pin)
	return td.nextResponse()
}

func (td *testDevice) writeOnly(req domain.Request, pin string) {
	require.NoError(td.t, td.PayloadRead())
	buf, err := application.EncodeRequest(td.codec, req, pin)
	require.NoError(td.t, err)
	require.NoError(td.t, td.Written(buf))
}

func (td *testDevice) nextResponse() *application.Response {
	select {
	case payload := <-td.transport.payloads:
		records, err := td.codec.Decode(payload)
		require.NoError(td.t, err)
		resp, err := application.ParseResponse(records)
		require.NoError(td.t, err)
		require.Equal(td.t, application.AppURI, resp.AppURI)
		require.True(td.t, resp.VerifySessionSignature())
		return resp
	case halt := <-td.halt:
		td.halted = true
		td.t.Fatalf("device halted while waiting for a reply: %s", halt)
	case <-time.After(waitTimeout):
		td.t.Fatal("timed out waiting for a reply")
	}
	return nil
}

func (td *testDevice) requireNoResponse() {
	select {
	case <-td.transport.payloads:
		td.t.Fatal("unexpected reply")
	case <-time.After(quietTimeout):
	}
}

func (td *testDevice) waitHalt() application.Halt {
	select {
	case halt := <-td.halt:
		td.halted = true
		return halt
	case <-time.After(waitTimeout):
		td.t.Fatal("timed out waiting for the device to halt")
	}
	return application.Halt{}
}

func (td *testDevice) requireNotHalted() {
	select {
	case halt := <-td.halt:
		td.halted = true
		td.t.Fatalf("unexpected halt: %s", halt)
	case <-time.After(quietTimeout):
	}
}

func (td *testDevice) storedRecord() *domain.KeyRecord {
	record, err := td.repo.GetKeyRecord(ctx)
	require.NoError(td.t, err)
	return record
}

func pinOf(pin uint32) string {
	return strconv.FormatUint(uint64(pin), 10)
}

func requireOutcome(
	t *testing.T, resp *application.Response,
	cmd domain.Command, exec domain.ExecState, reason domain.Reason,
) {
	require.Equal(t, cmd, resp.State.Command)
	require.Equal(t, exec, resp.State.Exec, "reason: %d", resp.State.Reason)
	require.Equal(t, reason, resp.State.Reason)
}
