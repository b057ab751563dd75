package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/pkg/hdkey"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var (
	pinFlag = &cli.StringFlag{
		Name:  "pin",
		Usage: "the device PIN",
	}
	moreFlag = &cli.BoolFlag{
		Name:  "more",
		Usage: "keep the device on after reading protected data",
	}
	masterFlag = &cli.BoolFlag{
		Name:  "master",
		Usage: "sign with the master key instead of the derivative one",
	}
	hashFlag = &cli.StringSliceFlag{
		Name:     "hash",
		Usage:    "hex encoded 32-byte hash to sign, can be repeated",
		Required: true,
	}
	pathFlag = &cli.StringFlag{
		Name:     "path",
		Usage:    "the new derivation path, ie. m/1/2/3/4/5. Zero indexes are randomized by the device",
		Required: true,
	}
	newPinFlag = &cli.StringFlag{
		Name:     "new-pin",
		Usage:    "the new PIN",
		Required: true,
	}
	noteFlag = &cli.StringFlag{
		Name:     "note",
		Usage:    "the new note",
		Required: true,
	}
)

type deviceCommand struct {
	name    string
	usage   string
	command domain.Command
	flags   []cli.Flag
	data    func(ctx *cli.Context) (string, error)
}

var deviceCommands = []deviceCommand{
	{"lock", "enroll a fingerprint and lock the device", domain.CmdLock, nil, nil},
	{"unlock", "erase fingerprints, PIN and note", domain.CmdUnlock, nil, nil},
	{"show-key", "show the extended public keys and the derivation path", domain.CmdShowKey, nil, nil},
	{"sign", "sign one or more hashes", domain.CmdSign, []cli.Flag{hashFlag, masterFlag}, signData},
	{"set-key", "change the derivation path", domain.CmdSetKey, []cli.Flag{pathFlag}, setKeyData},
	{"set-pin", "change the PIN", domain.CmdSetPin, []cli.Flag{newPinFlag}, setPinData},
	{"set-note", "change the note", domain.CmdSetNote, []cli.Flag{noteFlag}, setNoteData},
	{"cancel", "cancel the pending request", domain.CmdCancel, nil, nil},
	{"reset", "factory reset, confirmed by holding a finger on the sensor", domain.CmdReset, nil, nil},
	{"export-wif", "export the derivative private key in WIF", domain.CmdExportWIFKey, nil, nil},
}

func requestCommands() []*cli.Command {
	cmds := make([]*cli.Command, 0, len(deviceCommands))
	for _, dc := range deviceCommands {
		dc := dc
		cmds = append(cmds, &cli.Command{
			Name:  dc.name,
			Usage: dc.usage,
			Flags: append([]cli.Flag{pinFlag, moreFlag}, dc.flags...),
			Action: func(ctx *cli.Context) error {
				return requestAction(ctx, dc)
			},
		})
	}
	return cmds
}

func requestAction(ctx *cli.Context, dc deviceCommand) error {
	var data string
	if dc.data != nil {
		var err error
		if data, err = dc.data(ctx); err != nil {
			return err
		}
	}

	s, cleanup, err := enterField(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := s.read(); err != nil {
		return err
	}
	sessionID, err := s.sessionID()
	if err != nil {
		return err
	}

	req := domain.Request{
		SessionID: sessionID,
		RequestID: newRequestID(),
		Command:   dc.command,
		Data:      data,
		Options: domain.Options{
			UseMasterKey: ctx.Bool(masterFlag.Name),
			More:         ctx.Bool(moreFlag.Name),
		},
	}
	buf, err := application.EncodeRequest(s.codec, req, ctx.String(pinFlag.Name))
	if err != nil {
		return err
	}
	if err := s.reader.WritePayload(buf); err != nil {
		return err
	}

	resp, err := s.read()
	if err != nil {
		return err
	}

	out := formatResponse(resp)
	if dc.command == domain.CmdSign && resp.State.Exec == domain.ExecSuccess {
		verified, err := verifySignatures(resp, ctx.StringSlice(hashFlag.Name))
		if err != nil {
			return err
		}
		out["signatures_verified"] = verified
	}
	printJSON(out)
	return nil
}

func signData(ctx *cli.Context) (string, error) {
	hashes := ctx.StringSlice(hashFlag.Name)
	for _, h := range hashes {
		buf, err := hex.DecodeString(h)
		if err != nil || len(buf) != hdkey.HashSize {
			return "", fmt.Errorf("invalid hash %q", h)
		}
	}
	return strings.Join(hashes, "\n"), nil
}

func setKeyData(ctx *cli.Context) (string, error) {
	path, err := hdkey.ParseDerivationPath(ctx.String(pathFlag.Name))
	if err != nil {
		return "", err
	}
	if len(path) != hdkey.PathDepth {
		return "", fmt.Errorf("path must have %d indexes", hdkey.PathDepth)
	}
	fields := make([]string, 0, len(path))
	for _, index := range path {
		fields = append(fields, checkedNumber(index))
	}
	return strings.Join(fields, ","), nil
}

func setPinData(ctx *cli.Context) (string, error) {
	pin, err := strconv.ParseUint(ctx.String(newPinFlag.Name), 10, 32)
	if err != nil || uint32(pin) == domain.DefaultPin {
		return "", fmt.Errorf("invalid pin")
	}
	return checkedNumber(uint32(pin)), nil
}

func setNoteData(ctx *cli.Context) (string, error) {
	note := ctx.String(noteFlag.Name)
	if len(note) > domain.MaxNoteLength {
		return "", fmt.Errorf("note exceeds %d bytes", domain.MaxNoteLength)
	}
	return note, nil
}

// checkedNumber appends the check character expected by the device, that
// is the first digit of the number.
func checkedNumber(n uint32) string {
	str := strconv.FormatUint(uint64(n), 10)
	return str + str[:1]
}

func verifySignatures(resp *application.Response, hashes []string) (bool, error) {
	sigs, err := resp.Signatures()
	if err != nil {
		return false, err
	}
	if len(sigs) != len(hashes) {
		return false, nil
	}
	pubkey, err := hex.DecodeString(resp.SessionFields()[application.LabelPublicKey])
	if err != nil {
		return false, err
	}
	for i, sig := range sigs {
		hash, _ := hex.DecodeString(hashes[i])
		if !hdkey.Verify(pubkey, hash, sig) {
			return false, nil
		}
	}
	return true, nil
}

func newRequestID() uint32 {
	for {
		if id := uuid.New().ID(); id != 0 {
			return id
		}
	}
}
