package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/spacetimedb-core/pkg/catalog"
	"github.com/cuemby/spacetimedb-core/pkg/commitlog"
	"github.com/cuemby/spacetimedb-core/pkg/engine"
	"github.com/cuemby/spacetimedb-core/pkg/engine/reducerapi"
	applog "github.com/cuemby/spacetimedb-core/pkg/log"
	"github.com/cuemby/spacetimedb-core/pkg/metrics"
	"github.com/cuemby/spacetimedb-core/pkg/tx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot the engine against a data directory",
	Long: `Opens (creating if necessary) the commit log and system catalog
snapshot store under --data-dir, builds a Database seeded with the
system catalog tables, and exposes the reducer call boundary over
gRPC.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("data-dir", "./data", "Directory holding the commit log and catalog snapshot")
	serveCmd.Flags().String("grpc-addr", "127.0.0.1:7070", "Address the reducer gRPC API listens on")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address the metrics/health HTTP server listens on")
	serveCmd.Flags().Int64("reducer-budget", 0, "Per-call reducer budget; 0 disables the limit")
	serveCmd.Flags().Uint64("max-segment-size", commitlog.DefaultOptions().MaxSegmentSize, "Commit log segment rollover size in bytes")
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	grpcAddr, _ := cmd.Flags().GetString("grpc-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	budget, _ := cmd.Flags().GetInt64("reducer-budget")
	maxSegmentSize, _ := cmd.Flags().GetUint64("max-segment-size")

	rlog := applog.WithComponent("stdb")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	logOpts := commitlog.DefaultOptions()
	logOpts.MaxSegmentSize = maxSegmentSize
	clog, err := commitlog.Open(filepath.Join(dataDir, "log"), logOpts)
	if err != nil {
		return fmt.Errorf("opening commit log: %w", err)
	}
	defer clog.Close()
	fmt.Printf("✓ Commit log opened (%s)\n", filepath.Join(dataDir, "log"))

	catalogDir := filepath.Join(dataDir, "catalog")
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return fmt.Errorf("creating catalog dir: %w", err)
	}
	snapshots, err := catalog.OpenSnapshotStore(catalogDir)
	if err != nil {
		return fmt.Errorf("opening catalog snapshot store: %w", err)
	}
	defer snapshots.Close()
	fmt.Printf("✓ Catalog snapshot store opened (%s)\n", filepath.Join(catalogDir, "catalog.db"))

	db := tx.NewDatabase(catalog.Schema().Typespace)
	tableNames := make(map[uint32]string, len(catalog.Schema().RowTypes))
	for id, rowType := range catalog.Schema().RowTypes {
		if _, err := db.AddTable(id, rowType); err != nil {
			return fmt.Errorf("registering system table %d: %w", id, err)
		}
		tableNames[id] = catalog.Schema().Names[id]
	}
	fmt.Printf("✓ Database initialized with %d system tables\n", len(catalog.Schema().RowTypes))

	eng := engine.New(db, tableNames)
	defer eng.Close()

	srv := reducerapi.NewServer(eng, budget)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Listen(grpcAddr); err != nil {
			errCh <- fmt.Errorf("reducer API server error: %w", err)
		}
	}()
	fmt.Printf("✓ Reducer gRPC API listening on %s\n", grpcAddr)

	collector := metrics.NewCollector(db, tableNames, clog, eng.Broker())
	collector.Start()
	defer collector.Stop()
	fmt.Println("✓ Metrics collector started")

	metrics.SetVersion(Version)
	metrics.RegisterComponent("catalog", true, "ready")
	metrics.RegisterComponent("commitlog", true, "ready")
	metrics.RegisterComponent("reducerapi", true, "ready")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	httpSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rlog.Error().Err(err).Msg("metrics server error")
		}
	}()
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
	fmt.Printf("✓ Health endpoints: http://%s/{health,ready,live}\n", metricsAddr)
	fmt.Println()
	fmt.Println("Engine is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	srv.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		rlog.Warn().Err(err).Msg("metrics server shutdown error")
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
