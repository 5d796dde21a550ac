package fs

import (
	"ekv/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "test",
		Usage:     "check a path: -e exists, -d directory, -f regular file",
		ArgsUsage: "path",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "e"},
			&cli.BoolFlag{Name: "d"},
			&cli.BoolFlag{Name: "f"},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			p := cc.Abs(ctx.Args().First())

			var (
				ok  bool
				err error
			)
			switch {
			case ctx.Bool("d"):
				ok, err = cc.Client.IsDirectory(cc.Context(), p)
			case ctx.Bool("f"):
				ok, err = cc.Client.IsRegularFile(cc.Context(), p)
			default:
				ok, err = cc.Client.Exists(cc.Context(), p)
			}
			if err != nil {
				return err
			}
			cc.Printf("%v\n", ok)
			return nil
		},
	})
}
