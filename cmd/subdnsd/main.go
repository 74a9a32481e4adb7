package main

import (
	"context"
	"os"

	"go_subdns/internal/config"
	"go_subdns/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subdnsd",
		Short: "Subdomain DNS records with asynchronous Cloudflare sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", os.Getenv("SUBDNS_CONFIG"), "INI config file (env SUBDNS_CONFIG); environment variables override it")

	cmd.AddCommand(newCmdServe())
	cmd.AddCommand(newCmdWorker())
	cmd.AddCommand(newCmdMigrate())
	cmd.AddCommand(newCmdToken())
	return cmd
}

// loadConfig reads the INI file from --config when set, else the environment
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromINI(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	lg, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	logrus.SetFormatter(lg.Formatter)
	logrus.SetLevel(lg.Level)
	return cfg, lg, nil
}

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("Failed")
		os.Exit(1)
	}
}
