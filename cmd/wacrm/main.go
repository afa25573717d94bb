package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/talkincode/wacrm/config"
	"github.com/talkincode/wacrm/internal/adminapi"
	"github.com/talkincode/wacrm/internal/app"
	"github.com/talkincode/wacrm/internal/webserver"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "wacrm",
		Short:         "WhatsApp conversation export and CRM classification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "wacrm.yml", "config file")

	root.AddCommand(newServeCmd(&cfgFile))
	root.AddCommand(newPairCmd(&cfgFile))
	root.AddCommand(newTokenCmd(&cfgFile))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	})
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the http api and the session manager",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*cfgFile)
			if err != nil {
				return err
			}
			application := app.NewApplication(cfg)
			if err := application.Init(cfg); err != nil {
				return err
			}
			defer application.Release()
			application.StartBackgroundJobs()

			srv := webserver.New(application, cfg.Web)
			adminapi.Register(srv)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				zap.L().Info("wacrm: shutting down", zap.String("signal", s.String()))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}
