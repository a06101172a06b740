package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose scan results and tools over HTTP",
		Long: `Start the capability server. It serves read-only resources (findings,
status, config) and invocable tools (security_scan, security_triage,
security_fix) so coding agents can drive the scan pipeline remotely.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (host:port)")
	_ = viper.BindPFlag("server.listen_addr", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received shutdown signal, stopping server...")
		cancel()
	}()

	return eng.server.Serve(ctx, eng.config.Server.ListenAddr)
}
