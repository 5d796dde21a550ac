package fs

import (
	"sort"
	"strings"
	"time"

	"ekv/internal/client"
	"ekv/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "get",
		Usage:     "read keys of a file",
		ArgsUsage: "file key...",
		Action: kvAction(2, func(cc *cmd.CliContext, kv *client.KVClient, args []string) error {
			var terr error
			for _, k := range args {
				v, err := kv.Get(cc.Context(), k)
				if err != nil {
					terr = cmd.AppendError(terr, err)
					continue
				}
				cc.Printf("%v\t%v\n", k, v)
			}
			return terr
		}),
	})
	register(&cli.Command{
		Name:      "put",
		Usage:     "insert new keys",
		ArgsUsage: "file key value [key value...]",
		Action: kvAction(3, func(cc *cmd.CliContext, kv *client.KVClient, args []string) error {
			if len(args)%2 != 0 {
				return ErrInvalidArg
			}
			var terr error
			for i := 0; i < len(args); i += 2 {
				if err := kv.Put(cc.Context(), args[i], args[i+1]); err != nil {
					terr = cmd.AppendError(terr, err)
				}
			}
			return terr
		}),
	})
	register(&cli.Command{
		Name:      "update",
		Usage:     "replace the value of an existing key",
		ArgsUsage: "file key value",
		Action: kvAction(3, func(cc *cmd.CliContext, kv *client.KVClient, args []string) error {
			old, err := kv.Update(cc.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			cc.Printf("%v\t%v -> %v\n", args[0], old, args[1])
			return nil
		}),
	})
	register(&cli.Command{
		Name:      "del",
		Usage:     "remove keys",
		ArgsUsage: "file key...",
		Action: kvAction(2, func(cc *cmd.CliContext, kv *client.KVClient, args []string) error {
			var terr error
			for _, k := range args {
				if _, err := kv.Remove(cc.Context(), k); err != nil {
					terr = cmd.AppendError(terr, err)
				}
			}
			return terr
		}),
	})
	register(&cli.Command{
		Name:      "keys",
		Usage:     "list every key of a file",
		ArgsUsage: "file",
		Action: kvAction(1, func(cc *cmd.CliContext, kv *client.KVClient, _ []string) error {
			keys, err := kv.Keys(cc.Context())
			if err != nil {
				return err
			}
			sort.Strings(keys)
			for _, k := range keys {
				cc.Printf("%v\n", k)
			}
			return nil
		}),
	})
	register(&cli.Command{
		Name:      "count",
		Usage:     "count the keys of a file",
		ArgsUsage: "file",
		Action: kvAction(1, func(cc *cmd.CliContext, kv *client.KVClient, _ []string) error {
			n, err := kv.NumKeys(cc.Context())
			if err != nil {
				return err
			}
			cc.Printf("%d\n", n)
			return nil
		}),
	})
	register(&cli.Command{
		Name:      "watch",
		Usage:     "print notifications raised on a file",
		ArgsUsage: "file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "ops",
				Value: "put,remove",
				Usage: "comma separated operations to subscribe to",
			},
			&cli.DurationFlag{
				Name:  "for",
				Value: 10 * time.Second,
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return ErrNotEnoughArgs
			}
			cc := cmd.FromCli(ctx)
			l, err := client.NewListener(cc.Context(), cc.Client, cc.Abs(ctx.Args().First()), strings.Split(ctx.String("ops"), ","))
			if err != nil {
				return err
			}
			defer l.Close(cc.Context())

			deadline := time.Now().Add(ctx.Duration("for"))
			for time.Now().Before(deadline) {
				ns, err := l.Poll(cc.Context(), time.Second, 0)
				if err != nil {
					return err
				}
				for _, n := range ns {
					cc.Printf("%v\t%v\n", n.Op, n.Data)
				}
			}
			return nil
		},
	})
}

// kvAction opens the file named by the first argument and hands the rest to fn.
func kvAction(min int, fn func(cc *cmd.CliContext, kv *client.KVClient, args []string) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.NArg() < min {
			return ErrNotEnoughArgs
		}
		cc := cmd.FromCli(ctx)
		kv, err := client.NewKVClient(cc.Context(), cc.Client, cc.Abs(ctx.Args().First()))
		if err != nil {
			return err
		}
		return fn(cc, kv, ctx.Args().Tail())
	}
}
