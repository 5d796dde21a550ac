package fs

import (
	"ekv/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "rm",
		Usage:     "remove files or empty directories",
		ArgsUsage: "path...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "recursive",
				Aliases: []string{"r"},
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() < 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			var terr error
			for _, p := range ctx.Args().Slice() {
				var err error
				if ctx.Bool("recursive") {
					err = cc.Client.RemoveAll(cc.Context(), cc.Abs(p))
				} else {
					err = cc.Client.Remove(cc.Context(), cc.Abs(p))
				}
				if err != nil {
					terr = cmd.AppendError(terr, err)
				}
			}
			return terr
		},
	})
	register(&cli.Command{
		Name:      "mv",
		Usage:     "rename a path",
		ArgsUsage: "old new",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 2 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			return cc.Client.Rename(cc.Context(), cc.Abs(ctx.Args().Get(0)), cc.Abs(ctx.Args().Get(1)))
		},
	})
}
