package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/threadscope/internal/api"
	"github.com/threadscope/internal/config"
)

// APICommand returns the CLI command for starting the API server.
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Threadscope API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			router, err := buildRouter(c.Context, cfg)
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}

			port := cfg.API.Port
			if c.Int("port") > 0 {
				port = c.Int("port")
			}

			fmt.Printf("Starting Threadscope API server on port %d...\n", port)
			server := api.NewServer(port, buildEngine(cfg, router), router, st)
			return server.Start()
		},
	}
}
