package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"storyloom/internal/cli/scheme/colours"
	"storyloom/internal/config"
	"storyloom/internal/observe"
	"storyloom/internal/story/studio"
)

var version = "dev"

func main() {
	config.Init()
	cfg, err := config.Load()
	if err != nil {
		colours.Error.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyLogLevel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.Metrics.Addr != "" {
		shutdown, err := observe.InitProvider(ctx, version)
		if err != nil {
			logrus.WithError(err).Warn("Failed to start metrics provider")
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = shutdown(flushCtx)
			}()
			go func() {
				if err := observe.Serve(ctx, cfg.Metrics.Addr); err != nil {
					logrus.WithError(err).Warn("Metrics endpoint stopped")
				}
			}()
		}
	}

	app := studio.NewStudio(cfg, observe.DefaultMetrics())

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		app.Cancel()
		stop()
		fmt.Println("\n" + colours.Warning.Sprint("Stopping..."))
	}()

	rootCmd := &cobra.Command{
		Use:     "storyloom",
		Short:   "Illustrated, narrated stories with ambient music",
		Version: version,
		Long: `
storyloom writes short illustrated stories, narrates them over generated
ambient music, and renders them to video.
		`,
		Run:           app.ShowWelcome,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.AddCommands(rootCmd)

	if err := rootCmd.ExecuteContext(app.Context()); err != nil {
		if !errors.Is(err, context.Canceled) {
			colours.Error.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
}
