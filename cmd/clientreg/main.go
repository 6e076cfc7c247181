package main

import (
	"clientreg/cmd/clientreg/cmds"
	"clientreg/internal/backends"
	"clientreg/internal/secrets"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Usage:   "Path to a YAML config file",
	EnvVars: []string{"CONFIG_FILE"},
}

var flagEnvFile = &cli.StringFlag{
	Name:    "env-file",
	Value:   ".env",
	Usage:   "Path to a .env file",
	EnvVars: []string{"ENV_FILE"},
}

var flagClientsFile = &cli.StringFlag{
	Name:     "file",
	Usage:    "YAML file listing the clients to register",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:           "clientreg",
		Usage:          "client registry service",
		DefaultCommand: "serve",
		Flags:          []cli.Flag{flagConfig, flagEnvFile},
		Before: func(cCtx *cli.Context) error {
			if err := godotenv.Load(cCtx.String(flagEnvFile.Name)); err != nil {
				log.Info("The .env file not found.")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Action: func(cCtx *cli.Context) error {
					cfg, err := cmds.LoadConfig(cCtx.String(flagConfig.Name))
					if err != nil {
						return err
					}
					ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()
					return cmds.Serve(ctx, cfg)
				},
			},
			{
				Name:  "import",
				Usage: "Register clients from a YAML file and print their tokens",
				Flags: []cli.Flag{flagClientsFile},
				Action: func(cCtx *cli.Context) error {
					cfg, err := cmds.LoadConfig(cCtx.String(flagConfig.Name))
					if err != nil {
						return err
					}
					ctx := cCtx.Context
					b, err := backends.Open(ctx, cfg)
					if err != nil {
						return err
					}
					defer b.Close()
					svc, err := cmds.NewService(ctx, cfg, b)
					if err != nil {
						return err
					}
					issued, err := cmds.ImportClients(ctx, svc, cCtx.String(flagClientsFile.Name))
					if werr := cmds.WriteIssued(os.Stdout, issued); werr != nil {
						log.WithError(werr).Error("failed to write import report")
					}
					return err
				},
			},
			{
				Name:  "keygen",
				Usage: "Print a new hex key for SECRET_KEY",
				Action: func(cCtx *cli.Context) error {
					key, err := secrets.GenerateKey()
					if err != nil {
						return err
					}
					fmt.Println(key)
					return nil
				},
			},
			{
				Name:  "migrate",
				Usage: "Create the client table",
				Action: func(cCtx *cli.Context) error {
					cfg, err := cmds.LoadConfig(cCtx.String(flagConfig.Name))
					if err != nil {
						return err
					}
					return cmds.Migrate(cCtx.Context, cfg)
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
