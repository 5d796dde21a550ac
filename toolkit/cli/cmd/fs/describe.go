package fs

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"ekv/toolkit/cli/cmd"
	"ekv/types"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "stat",
		Aliases:   []string{"describe"},
		Usage:     "show the status of a path, and the chains of a file",
		ArgsUsage: "path...",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() < 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			var terr error
			for _, p := range ctx.Args().Slice() {
				if err := Describe(cc, cc.Abs(p), cc.StdOut); err != nil {
					terr = cmd.AppendError(terr, err)
				}
			}
			return terr
		},
	})
}

// ekvctl stat ${file}
func Describe(cli *cmd.CliContext, path string, w io.Writer) error {
	st, err := cli.Client.Status(cli.Context(), path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Path:     %v\n", path)
	fmt.Fprintf(w, "Type:     %v\n", st.Type)
	fmt.Fprintf(w, "Mode:     %v (%04o)\n", modString(st), uint16(st.Perms))
	fmt.Fprintf(w, "Modified: %v\n", time.UnixMilli(st.LastWriteTime).Format(time.DateTime))
	if st.Type != types.TypeRegular {
		return nil
	}

	ds, err := cli.Client.DStatus(cli.Context(), path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Storage:  %v\n", ds.Mode)
	fmt.Fprintf(w, "Prefix:   %v\n", ds.Prefix)
	fmt.Fprintf(w, "Flags:    %v\n", flagString(ds))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Slots\tStatus\tBlocks")
	for _, c := range ds.Chains {
		fmt.Fprintf(tw, "%v\t%v\t%v\n", c.Slots, c.Status, strings.Join(c.Names(), " -> "))
	}
	return tw.Flush()
}

func flagString(ds types.DataStatus) string {
	var flags []string
	if ds.IsPinned() {
		flags = append(flags, "pinned")
	}
	if ds.IsStaticProvisioned() {
		flags = append(flags, "static")
	}
	if ds.IsMapped() {
		flags = append(flags, "mapped")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
