package fs

import (
	"ekv/toolkit/cli/cmd"
	"ekv/types"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "create",
		Usage:     "create a file backed by replica chains",
		ArgsUsage: "path...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "blocks",
				Aliases: []string{"b"},
				Value:   1,
				Usage:   "number of chains",
			},
			&cli.IntFlag{
				Name:  "chain",
				Value: 1,
				Usage: "replicas per chain",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "persistent store prefix, e.g. local:///var/ekv",
			},
			&cli.BoolFlag{Name: "pinned", Usage: "never expire the lease"},
			&cli.BoolFlag{Name: "static", Usage: "disable auto scaling"},
			&cli.BoolFlag{Name: "mapped", Usage: "load from the persistent store on open"},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() < 1 {
				return ErrNotEnoughArgs
			}
			if ctx.Int("blocks") < 1 || ctx.Int("chain") < 1 {
				return ErrInvalidArg
			}
			cc := cmd.FromCli(ctx)
			flags := createFlags(ctx.Bool("pinned"), ctx.Bool("static"), ctx.Bool("mapped"))

			var terr error
			for _, p := range ctx.Args().Slice() {
				ds, err := cc.Client.Create(cc.Context(), cc.Abs(p), ctx.String("prefix"), ctx.Int("blocks"), ctx.Int("chain"), flags)
				if err != nil {
					terr = cmd.AppendError(terr, err)
					continue
				}
				cc.Printf("%v: %d chains\n", cc.Abs(p), len(ds.Chains))
			}
			return terr
		},
	})
}

func createFlags(pinned, static, mapped bool) int32 {
	var flags int32
	if pinned {
		flags |= types.FlagPinned
	}
	if static {
		flags |= types.FlagStaticProvisioned
	}
	if mapped {
		flags |= types.FlagMapped
	}
	return flags
}
