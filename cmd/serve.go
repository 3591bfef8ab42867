package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/ndf/app"
	"github.com/kilianp07/ndf/infra/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the scheduler and the notifiers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
