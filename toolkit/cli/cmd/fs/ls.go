package fs

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"ekv/toolkit/cli/cmd"
	"ekv/types"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "ls",
		Usage:     "list a directory",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "long",
				Aliases: []string{"l"},
				Usage:   "show permissions and modification time",
			},
			&cli.BoolFlag{
				Name:    "recursive",
				Aliases: []string{"R"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cc := cmd.FromCli(ctx)
			return ls(cc, cc.Abs(ctx.Args().First()), ctx.Bool("recursive"), WithTabWriter(cc.StdOut), WithLong(ctx.Bool("long")))
		},
	})
}

type lsOption func(*lsCfg)

type lsCfg struct {
	w    io.WriteCloser
	long bool
}

type SortBy []ModInfo

func (a SortBy) Len() int           { return len(a) }
func (a SortBy) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a SortBy) Less(i, j int) bool { return a[i].Name < a[j].Name }

type ModInfo struct {
	Mod      string
	Name     string
	Dir      bool
	Modified time.Time
}

type TabWriter struct {
	w *tabwriter.Writer
}

func New(w io.Writer, minwidth, tabwidth, padding int, padchar byte, flag uint) TabWriter {
	return TabWriter{
		w: tabwriter.NewWriter(w, minwidth, tabwidth, padding, padchar, flag),
	}
}

func (t TabWriter) Write(b []byte) (int, error) {
	return t.w.Write(b)
}

func (t TabWriter) Close() error {
	return t.w.Flush()
}

func WithTabWriter(w io.Writer) lsOption {
	return func(cfg *lsCfg) {
		cfg.w = New(w, 0, 0, 2, ' ', 0)
	}
}

func WithLong(long bool) lsOption {
	return func(cfg *lsCfg) {
		cfg.long = long
	}
}

func ls(ctx *cmd.CliContext, path string, recursive bool, opts ...lsOption) error {
	var cfg lsCfg
	for _, v := range opts {
		v(&cfg)
	}
	defer cfg.w.Close()

	mods, err := ListFile(ctx, path, recursive)
	if err != nil {
		return err
	}
	sort.Sort(SortBy(mods))
	for _, i := range mods {
		name := i.Name
		if i.Dir {
			name = color.BlueString(name + "/")
		}
		if cfg.long {
			fmt.Fprintf(cfg.w, "%v\t%v\t%v\n", i.Mod, i.Modified.Format(time.DateTime), name)
		} else {
			fmt.Fprintf(cfg.w, "%v\n", name)
		}
	}
	return nil
}

func modString(st types.FileStatus) string {
	t := "-"
	if st.Type == types.TypeDirectory {
		t = "d"
	}
	return t + st.Perms.String()
}

func ListFile(ctx *cmd.CliContext, path string, recursive bool) ([]ModInfo, error) {
	var (
		entries []types.DirectoryEntry
		err     error
	)
	if recursive {
		entries, err = ctx.Client.RecursiveDirectoryEntries(ctx.Context(), path)
	} else {
		entries, err = ctx.Client.DirectoryEntries(ctx.Context(), path)
	}
	if err != nil {
		return nil, err
	}

	ans := make([]ModInfo, len(entries))
	for idx, v := range entries {
		ans[idx] = ModInfo{
			Mod:      modString(v.Status),
			Name:     v.Name,
			Dir:      v.Status.Type == types.TypeDirectory,
			Modified: time.UnixMilli(v.Status.LastWriteTime),
		}
	}
	return ans, nil
}
