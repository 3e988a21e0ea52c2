package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/app"
	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/server"
)

type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	workerPort   = flag.Int("port", 0, "Worker port (overrides config)")
	workerPortP  = flag.Int("p", 0, "Worker port (shorthand, overrides config)")
	workerHost   = flag.String("host", "", "Worker host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile("linkprobe-worker")

	flag.Parse()

	version := common.LoadVersionFromFile()
	if *showVersion || *showVersionV {
		fmt.Printf("LinkProbe worker version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *workerPort
	if *workerPortP != 0 {
		finalPort = *workerPortP
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("linkprobe.toml"); err == nil {
			configFiles = append(configFiles, "linkprobe.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyWorkerFlagOverrides(config, finalPort, *workerHost)

	logger := common.InitLogger(config, "linkprobe-worker.log")
	common.PrintBanner("LinkProbe Worker", version)

	application, err := app.NewWorker(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize browser worker")
		os.Exit(1)
	}

	srv := server.NewWorker(application)

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "worker-server", func() {
		serverErr <- srv.Start()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Worker server stopped unexpectedly")
		}
	}

	// Let in-flight runs finish within their execution budget
	ctx, cancel := context.WithTimeout(context.Background(), app.WorkerExecutionTimeout(config)+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Worker shutdown failed")
	}

	logger.Info().Msg("Worker stopped")
}
