// Command asyncqueue drives a queue with synthetic load and prints its
// effective configuration.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "asyncqueue",
		Usage: "Run a priority task queue with concurrency and rate limits",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file; ASYNCQUEUE_* variables override it",
				EnvVars: []string{"ASYNCQUEUE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			RunCommand(),
			ConfigCommand(),
		},
	}
}
