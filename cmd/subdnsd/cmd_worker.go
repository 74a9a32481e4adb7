package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newCmdWorker() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the DNS sync dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, lg)
			if err != nil {
				return err
			}
			defer a.close()

			dispatcher, err := a.newDispatcher()
			if err != nil {
				return err
			}
			dispatcher.Start()
			<-ctx.Done()
			dispatcher.Stop()
			return nil
		},
	}
}
