package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"ekv/toolkit/cli/cmd"
	"ekv/toolkit/cli/cmd/fs"
	"ekv/types"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var ErrQuit = errors.New("quit")

func InitSetup() *cli.App {
	return &cli.App{
		Name:  "ekvctl",
		Usage: "interactive shell of an ekv cluster",
		Flags: []cli.Flag{cmd.DirectoryFlag, cmd.LeaseFlag},
		Action: func(ctx *cli.Context) error {
			if ctx.IsSet(cmd.DirectoryFlag.Name) {
				cmd.Env.Directory = types.Addr(ctx.String(cmd.DirectoryFlag.Name))
			}
			if ctx.IsSet(cmd.LeaseFlag.Name) {
				cmd.Env.Lease = types.Addr(ctx.String(cmd.LeaseFlag.Name))
			}
			fmt.Printf("Init environment [directory:%v] [lease:%v] [cwd:%v]\n", cmd.Env.Directory, cmd.Env.Lease, cmd.Env.Cwd)
			return nil
		},
	}
}

func InitApp() *cli.App {
	builtin := []*cli.Command{
		{
			Name:      "cd",
			ArgsUsage: "dir",
			Action: func(ctx *cli.Context) error {
				cc := cmd.FromCli(ctx)
				dir := cc.Abs(ctx.Args().First())
				if ctx.NArg() == 0 {
					dir = "/"
				}
				ok, err := cc.Client.IsDirectory(cc.Context(), dir)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%v: %w", dir, types.ErrTypeMismatch)
				}
				cmd.Env.Cwd = dir
				return nil
			},
		},
		{
			Name: "pwd",
			Action: func(ctx *cli.Context) error {
				fmt.Fprintln(ctx.App.Writer, cmd.Env.Cwd)
				return nil
			},
		},
		{
			Name:    "exit",
			Aliases: []string{"quit"},
			Action: func(ctx *cli.Context) error {
				return ErrQuit
			},
		},
	}
	return &cli.App{
		Name:           "ekvctl",
		Commands:       append(builtin, fs.Export()...),
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func enterCommand(r *bufio.Reader) ([]string, error) {
	// ekv://[@/]> ls -l
	fmt.Printf("%s[@%s]%s ", color.BlueString("ekv://"), color.RedString(cmd.Env.Cwd), color.GreenString(">"))

	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return append([]string{"ekvctl"}, strings.Fields(line)...), nil
}

func loop() {
	app := InitApp()
	r := bufio.NewReader(os.Stdin)
	for {
		tokens, err := enterCommand(r)
		if err != nil {
			break
		}
		if len(tokens) == 1 {
			continue
		}
		err = app.Run(tokens)
		if err != nil {
			if errors.Is(err, ErrQuit) {
				break
			}
			log.Println(err)
		}
	}
}

func main() {
	setup := InitSetup()
	if err := setup.Run(os.Args); err != nil {
		log.Fatal(err)
	}
	loop()
}
