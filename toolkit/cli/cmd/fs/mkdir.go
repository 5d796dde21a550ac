package fs

import (
	"ekv/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "mkdir",
		Usage:     "create directories",
		ArgsUsage: "path...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "parents",
				Aliases: []string{"p"},
				Usage:   "create missing parents too",
			},
		},
		Action: Mkdir,
	})
}

func Mkdir(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return ErrNotEnoughArgs
	}
	cc := cmd.FromCli(ctx)
	parents := ctx.Bool("parents")

	var terr error
	for _, p := range ctx.Args().Slice() {
		if err := mkdir(cc, cc.Abs(p), parents); err != nil {
			terr = cmd.AppendError(terr, err)
		}
	}
	return terr
}

func mkdir(ctx *cmd.CliContext, path string, parents bool) error {
	if parents {
		return ctx.Client.CreateDirectories(ctx.Context(), path)
	}
	return ctx.Client.CreateDirectory(ctx.Context(), path)
}
