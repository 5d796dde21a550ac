package fs

import (
	"errors"

	"ekv/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

var (
	ErrNotEnoughArgs = errors.New("not enough args")
	ErrInvalidArg    = errors.New("invalid argument")
)
var command []*cli.Command

func register(xcmd *cli.Command) {
	if command == nil {
		command = make([]*cli.Command, 0)
	}
	xcmd.Flags = append(xcmd.Flags, cmd.DirectoryFlag, cmd.LeaseFlag)
	command = append(command, xcmd)
}

func Export() []*cli.Command {
	return command
}
