package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ndf/app"
	"github.com/kilianp07/ndf/infra/logger"
)

var dsfCmd = &cobra.Command{
	Use:   "dsf",
	Short: "Finance department bundle commands",
}

var dsfSendCmd = &cobra.Command{
	Use:   "send <sheet-id>",
	Short: "Compile and mail the DSF bundle of an approved sheet",
	Args:  cobra.ExactArgs(1),
	RunE:  runDSFSend,
}

var dsfRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Send every approved DSF sheet not yet mailed",
	Args:  cobra.NoArgs,
	RunE:  runDSFRetry,
}

func init() {
	dsfCmd.AddCommand(dsfSendCmd, dsfRetryCmd)
	rootCmd.AddCommand(dsfCmd)
}

func withService(fn func(context.Context, *app.Service) error) error {
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
			logger.New("cli").Errorf("service close: %v", err)
		}
	}()
	return fn(ctx, svc)
}

func runDSFSend(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		if err := svc.Dispatcher.Send(ctx, args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "sheet %s sent\n", args[0])
		return err
	})
}

func runDSFRetry(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		n, err := svc.Dispatcher.Retry(ctx)
		if _, ferr := fmt.Fprintf(cmd.OutOrStdout(), "%d sheet(s) sent\n", n); ferr != nil {
			return ferr
		}
		return err
	})
}
