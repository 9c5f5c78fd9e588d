package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thehardbits/gpw/internal/hexmap"
	"github.com/thehardbits/gpw/internal/query"
	"github.com/thehardbits/gpw/internal/stream"
	"github.com/thehardbits/gpw/pkg/config"
	"github.com/thehardbits/gpw/pkg/logging"
	"github.com/thehardbits/gpw/pkg/monitoring"
	"github.com/thehardbits/gpw/pkg/server"
	"github.com/thehardbits/gpw/pkg/version"
)

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve [flags] SNAPSHOT",
		Short: "Serve population lookups from a combined snapshot",
		Long:  "Serve loads one combined snapshot into an immutable in-memory index and answers GET /<hex-cell> with the population covered by that cell.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, args[0])
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default 3000)")
	return cmd
}

func runServe(port, snapshotPath string) error {
	logger := logging.NewLoggerWithService("gpws")
	config.LoadEnv(logger)

	if port == "" {
		port = viper.GetString("port")
	}
	if port == "" {
		port = "3000"
	}

	// The process must not come up without a valid snapshot.
	index, err := loadSnapshot(snapshotPath, logger)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", snapshotPath, err)
	}

	healthChecker := monitoring.NewHealthChecker("gpws", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("gpws", version.Version, version.GitCommit)
	healthChecker.AddCheck("snapshot", monitoring.SnapshotHealthCheck(index))
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"port":     port,
		"snapshot": snapshotPath,
	}))

	lookups, duration, entries := metricsCollector.CreateIndexMetrics()
	entries.WithLabelValues(filepath.Base(snapshotPath)).Set(float64(index.Len()))

	handlers := query.NewHandlers(index, logger, lookups, duration)

	router := server.SetupServiceRouter(logger, "gpws", healthChecker, metricsCollector)
	router.GET("/:cell", handlers.HandlePopulation)

	serverConfig := server.DefaultConfig("gpws", port)
	return server.Start(serverConfig, router, logger)
}

func loadSnapshot(path string, logger logging.Logger) (*hexmap.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	index := hexmap.NewStatic()
	progress := func(records int) {
		logger.WithField("records", records).Debug("Loading snapshot")
	}
	if err := index.Ingest(stream.NewReader(bufio.NewReader(f)), progress); err != nil {
		return nil, err
	}
	logger.WithFields(logging.Fields{
		"snapshot": path,
		"entries":  index.Len(),
	}).Info("Snapshot loaded")
	return index, nil
}
