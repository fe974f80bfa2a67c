package main

import (
	"cmp"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/remind/internal/config"
	"github.com/dukerupert/remind/internal/logging"
	"github.com/dukerupert/remind/internal/notify/push"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "remind",
		Short:         "RE:MIND reminder server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", cmp.Or(os.Getenv("REMIND_CONFIG"), "config.yaml"), "path to YAML config file")

	load := func() (config.Application, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, err
		}
		logging.Setup(cfg.Log.Level)
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	root.AddCommand(
		serveCmd,
		&cobra.Command{
			Use:   "vapid-keys",
			Short: "Generate a VAPID key pair for web push",
			RunE: func(cmd *cobra.Command, args []string) error {
				pub, priv, err := push.GenerateVAPIDKeys()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "REMIND_PUSH_VAPIDPUBLICKEY=%s\nREMIND_PUSH_VAPIDPRIVATEKEY=%s\n", pub, priv)
				return nil
			},
		},
		backupCommand(load),
	)

	// Bare "remind" runs the server.
	root.RunE = serveCmd.RunE

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
