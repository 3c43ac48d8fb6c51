package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-async-queue/config"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "Print the effective configuration as YAML",
		Action: ConfigAction,
	}
}

func ConfigAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	if err := config.Dump(c.App.Writer, cfg); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to print config: %v", err), 1)
	}
	return nil
}
