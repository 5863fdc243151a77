package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		envFiles       []string
		port           string
		host           string
		dev            bool
		starterPath    string
		fetchLibraries bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the preview server",
		Long: `Start the HTTP and WebSocket server. Configuration comes from the
environment (optionally seeded from .env files); flags override it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFiles(envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("dev") {
				cfg.Logging.Development = dev
			}
			if flags.Changed("starter") {
				cfg.Starter.Path = starterPath
			}
			if flags.Changed("fetch-libraries") {
				cfg.Sandbox.FetchLibraries = fetchLibraries
			}

			srv, err := server.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Run()
			}()

			select {
			case <-sigChan:
				log.Println("Shutting down gracefully...")
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(ctx)
			case err := <-errChan:
				_ = srv.Shutdown(context.Background())
				return err
			}
		},
	}

	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files to load (missing files are skipped)")
	cmd.Flags().StringVarP(&port, "port", "p", "8000", "Port to listen on")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Interface to bind")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development logging (colored, debug level)")
	cmd.Flags().StringVar(&starterPath, "starter", "", "Starter template file (.yaml, .toml or .json)")
	cmd.Flags().BoolVar(&fetchLibraries, "fetch-libraries", false, "Fetch external library scripts inside the sandbox")

	return cmd
}
