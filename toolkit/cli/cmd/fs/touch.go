package fs

import (
	"ekv/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "touch",
		Usage:     "update the write time of a path, creating a one-block file when missing",
		ArgsUsage: "path...",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() < 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			var terr error
			for _, p := range ctx.Args().Slice() {
				if err := touch(cc, cc.Abs(p)); err != nil {
					terr = cmd.AppendError(terr, err)
				}
			}
			return terr
		},
	})
}

func touch(ctx *cmd.CliContext, path string) error {
	ok, err := ctx.Client.Exists(ctx.Context(), path)
	if err != nil {
		return err
	}
	if ok {
		return ctx.Client.Touch(ctx.Context(), path)
	}
	_, err = ctx.Client.Create(ctx.Context(), path, "", 1, 1, 0)
	return err
}
