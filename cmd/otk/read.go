package main

import (
	"github.com/cyphereco/openturnkey/internal/core/application"
	"github.com/urfave/cli/v2"
)

var read = cli.Command{
	Name:   "read",
	Usage:  "read the payload served by the device",
	Action: readAction,
}

func readAction(ctx *cli.Context) error {
	s, cleanup, err := enterField(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := s.read()
	if err != nil {
		return err
	}
	printJSON(formatResponse(resp))
	return nil
}

// formatResponse returns the printable view of a device reply.
func formatResponse(resp *application.Response) map[string]interface{} {
	fields := resp.SessionFields()
	out := map[string]interface{}{
		"mint_info":  resp.MintInfo,
		"lock_state": resp.State.Lock.String(),
		"exec_state": resp.State.Exec.String(),
		"command":    resp.State.Command.String(),
		"reason":     resp.State.Reason.String(),
		"state_word": resp.State.String(),
		"public_key": resp.PublicKey,
		"session":    fields,
	}
	return out
}
