package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"ekv"
	"ekv/config"

	"github.com/urfave/cli/v2"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "cluster configuration file (toml); the built-in localhost cluster when empty",
	EnvVars: []string{"EKV_CONFIG"},
}

func loadConfig(ctx *cli.Context) (*config.Configuration, error) {
	path := ctx.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func waitSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Println("Receive exit signal")
}

func main() {
	app := &cli.App{
		Name:  "ekv",
		Usage: "elastic chain-replicated key-value store",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:  "directory",
				Usage: "run the directory server",
				Action: func(ctx *cli.Context) error {
					cc, err := loadConfig(ctx)
					if err != nil {
						return err
					}
					d, err := ekv.NewDirectory(cc)
					if err != nil {
						return err
					}
					waitSignal()
					d.Stop()
					return nil
				},
			},
			{
				Name:  "storage",
				Usage: "run one storage server of the configuration",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:    "uuid",
						Aliases: []string{"u"},
						Usage:   "storage node uuid; $" + ekv.UuidEnv + " when omitted",
						Value:   -1,
					},
				},
				Action: func(ctx *cli.Context) error {
					cc, err := loadConfig(ctx)
					if err != nil {
						return err
					}
					s, err := ekv.NewStorageServer(cc, ctx.Int64("uuid"))
					if err != nil {
						return err
					}
					waitSignal()
					s.Stop()
					return nil
				},
			},
			{
				Name:  "standalone",
				Usage: "run the directory and every storage server in this process",
				Action: func(ctx *cli.Context) error {
					cc, err := loadConfig(ctx)
					if err != nil {
						return err
					}
					sa, err := ekv.NewStandalone(cc)
					if err != nil {
						return err
					}
					waitSignal()
					sa.Stop()
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
