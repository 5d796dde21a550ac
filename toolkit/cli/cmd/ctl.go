package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"ekv/internal/client"
	"ekv/types"

	"github.com/urfave/cli/v2"
)

type EndPointCfg struct {
	Directory types.Addr
	Lease     types.Addr
}

// CliEnv is the state a shell session keeps between commands.
type CliEnv struct {
	EndPointCfg
	Cwd string
}

var Env = &CliEnv{
	EndPointCfg: EndPointCfg{
		Directory: "127.0.0.1:9090",
		Lease:     "127.0.0.1:9091",
	},
	Cwd: "/",
}

type CliContext struct {
	EndPointCfg
	Client *client.DirectoryClient
	Pwd    string
	StdOut io.Writer
	ctx    context.Context
}

func NewCliContext(cfg EndPointCfg, w io.Writer) *CliContext {
	if w == nil {
		w = os.Stdout
	}
	return &CliContext{
		EndPointCfg: cfg,
		Client:      client.NewDirectoryClient(cfg.Directory, cfg.Lease),
		Pwd:         Env.Cwd,
		StdOut:      w,
	}
}

// FromCli builds the context of one command; flags given on the command win over the session.
func FromCli(ctx *cli.Context) *CliContext {
	cfg := Env.EndPointCfg
	if ctx.IsSet(DirectoryFlag.Name) {
		cfg.Directory = types.Addr(ctx.String(DirectoryFlag.Name))
	}
	if ctx.IsSet(LeaseFlag.Name) {
		cfg.Lease = types.Addr(ctx.String(LeaseFlag.Name))
	}
	cc := NewCliContext(cfg, ctx.App.Writer)
	cc.ctx = ctx.Context
	return cc
}

func (ctx *CliContext) Context() context.Context {
	if ctx.ctx == nil {
		return context.Background()
	}
	return ctx.ctx
}

// Abs resolves p against the working directory.
func (ctx *CliContext) Abs(p string) string {
	if p == "" {
		return ctx.Pwd
	}
	if p[0] != '/' {
		p = path.Join(ctx.Pwd, p)
	}
	return path.Clean(p)
}

func (ctx *CliContext) Printf(format string, args ...interface{}) {
	fmt.Fprintf(ctx.StdOut, format, args...)
}

func (ctx *CliContext) Errorf(format string, args ...interface{}) {
	args = append([]interface{}{time.Now().Format(time.TimeOnly)}, args...)
	fmt.Fprintf(ctx.StdOut, "%v "+format+"\n", args...)
}

func AppendError(err error, err2 error) error {
	if err == nil {
		return err2
	}
	return fmt.Errorf("%s;%s", err, err2)
}

var DirectoryFlag = &cli.StringFlag{
	Name:    "directory",
	Usage:   "directory service address",
	EnvVars: []string{"EKV_DIRECTORY"},
}

var LeaseFlag = &cli.StringFlag{
	Name:    "lease",
	Usage:   "directory lease address",
	EnvVars: []string{"EKV_LEASE"},
}
