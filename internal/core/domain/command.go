package domain

import (
	"fmt"
	"strconv"
)

// Command is the code of a request command. Valid codes form the
// contiguous range [CmdLock, cmdLast).
type Command uint8

// CmdInvalid marks the absence of a pending request.
const CmdInvalid Command = 0

const (
	CmdLock Command = iota + 0xA0
	CmdUnlock
	CmdShowKey
	CmdSign
	CmdSetKey
	CmdSetPin
	CmdSetNote
	CmdCancel
	CmdReset
	CmdExportWIFKey
	cmdLast
)

var commandNames = map[Command]string{
	CmdInvalid:      "INVALID",
	CmdLock:         "LOCK",
	CmdUnlock:       "UNLOCK",
	CmdShowKey:      "SHOW_KEY",
	CmdSign:         "SIGN",
	CmdSetKey:       "SET_KEY",
	CmdSetPin:       "SET_PIN",
	CmdSetNote:      "SET_NOTE",
	CmdCancel:       "CANCEL",
	CmdReset:        "RESET",
	CmdExportWIFKey: "EXPORT_WIF_KEY",
}

// ParseCommand parses the decimal command code of a request record.
func ParseCommand(str string) (Command, error) {
	code, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		return CmdInvalid, fmt.Errorf("%w: %q", ErrInvalidCommand, str)
	}
	cmd := Command(code)
	if code > 0xff || !cmd.IsValid() {
		return CmdInvalid, fmt.Errorf("%w: %d", ErrInvalidCommand, code)
	}
	return cmd, nil
}

// CommandByName returns the command with the given name, ie. SIGN.
func CommandByName(name string) (Command, bool) {
	for cmd, n := range commandNames {
		if n == name && cmd.IsValid() {
			return cmd, true
		}
	}
	return CmdInvalid, false
}

// IsValid returns whether the command is in the known range.
func (c Command) IsValid() bool {
	return c >= CmdLock && c < cmdLast
}

// KeepsData returns whether the data record of a request is retained for
// this command.
func (c Command) KeepsData() bool {
	return c >= CmdSign && c < CmdCancel
}

// IsDisclosing returns whether a successful execution of the command
// discloses protected content in the session data.
func (c Command) IsDisclosing() bool {
	return c == CmdShowKey || c == CmdSign || c == CmdExportWIFKey
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%#x)", uint8(c))
}

// Commands returns all valid commands in code order.
func Commands() []Command {
	cmds := make([]Command, 0, int(cmdLast-CmdLock))
	for c := CmdLock; c < cmdLast; c++ {
		cmds = append(cmds, c)
	}
	return cmds
}
