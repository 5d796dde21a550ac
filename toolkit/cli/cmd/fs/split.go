package fs

import (
	"fmt"
	"text/tabwriter"

	"ekv/toolkit/cli/cmd"
	"ekv/types"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "split",
		Usage:     "add a chain to a file, or split the chain owning a slot range",
		ArgsUsage: "file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "slots",
				Usage: "slot range begin_end of the chain to split",
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			path := cc.Abs(ctx.Args().First())
			if !ctx.IsSet("slots") {
				chain, err := cc.Client.AddBlockToFile(cc.Context(), path)
				if err != nil {
					return err
				}
				cc.Printf("%v\n", chain)
				return nil
			}
			r, err := types.ParseSlotRange(ctx.String("slots"))
			if err != nil {
				return err
			}
			return cc.Client.SplitSlotRange(cc.Context(), path, r)
		},
	})
	register(&cli.Command{
		Name:      "merge",
		Usage:     "merge the chain owning a slot range into its neighbour",
		ArgsUsage: "file begin_end",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 2 {
				return ErrNotEnoughArgs
			}
			r, err := types.ParseSlotRange(ctx.Args().Get(1))
			if err != nil {
				return err
			}
			cc := cmd.FromCli(ctx)
			return cc.Client.MergeSlotRange(cc.Context(), cc.Abs(ctx.Args().First()), r)
		},
	})
	register(&cli.Command{
		Name:      "flush",
		Usage:     "write a file to its persistent store and release its blocks",
		ArgsUsage: "file",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			return cc.Client.Flush(cc.Context(), cc.Abs(ctx.Args().First()))
		},
	})
	register(&cli.Command{
		Name:      "load",
		Usage:     "bring a flushed file back into memory",
		ArgsUsage: "file",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			ds, err := cc.Client.Load(cc.Context(), cc.Abs(ctx.Args().First()))
			if err != nil {
				return err
			}
			cc.Printf("%v: %d chains\n", ds.Mode, len(ds.Chains))
			return nil
		},
	})
	register(&cli.Command{
		Name:  "df",
		Usage: "show block allocation",
		Action: func(ctx *cli.Context) error {
			cc := cmd.FromCli(ctx)
			st, err := cc.Client.AllocatorStats(cc.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cc.StdOut, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "Total\tAllocated\tFree")
			fmt.Fprintf(tw, "%d\t%d\t%d\n", st.Total, st.Allocated, st.Free)
			return tw.Flush()
		},
	})
}
