package fs

import (
	"strconv"

	"ekv/toolkit/cli/cmd"
	"ekv/types"

	"github.com/urfave/cli/v2"
)

func init() {
	register(&cli.Command{
		Name:      "chmod",
		Usage:     "change permissions; +mode adds bits, -mode removes them",
		ArgsUsage: "mode path...",
		// "-644" must not parse as a flag
		SkipFlagParsing: true,
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() < 2 {
				return ErrNotEnoughArgs
			}
			perms, opt, err := ParseMode(ctx.Args().First())
			if err != nil {
				return err
			}
			cc := cmd.FromCli(ctx)
			var terr error
			for _, p := range ctx.Args().Tail() {
				if err := cc.Client.SetPermissions(cc.Context(), cc.Abs(p), perms, opt); err != nil {
					terr = cmd.AppendError(terr, err)
				}
			}
			return terr
		},
	})
}

// ParseMode reads an octal mode with an optional + or - prefix.
func ParseMode(s string) (types.Perms, types.PermOptions, error) {
	opt := types.PermReplace
	if len(s) > 0 {
		switch s[0] {
		case '+':
			opt, s = types.PermAdd, s[1:]
		case '-':
			opt, s = types.PermRemove, s[1:]
		}
	}
	v, err := strconv.ParseUint(s, 8, 16)
	if err != nil || types.Perms(v)&^types.PermMask != 0 {
		return 0, opt, ErrInvalidArg
	}
	return types.Perms(v), opt, nil
}
