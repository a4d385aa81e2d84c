// Command observatory runs the oracle observatory: the sync scheduler that
// keeps every configured protocol instance's assertions/disputes/votes
// current, plus its rewards-sync and TVL-snapshot sub-tasks.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	infraconfig "github.com/r3e-network/oracle-observatory/infrastructure/config"
	"github.com/r3e-network/oracle-observatory/infrastructure/logging"
	"github.com/r3e-network/oracle-observatory/infrastructure/metrics"
	"github.com/r3e-network/oracle-observatory/internal/chainrpc"
	"github.com/r3e-network/oracle-observatory/internal/config"
	"github.com/r3e-network/oracle-observatory/internal/scheduler"
	"github.com/r3e-network/oracle-observatory/internal/storage"
	syncengine "github.com/r3e-network/oracle-observatory/internal/sync"
)

func main() {
	logger := logging.New("oracle-observatory", infraconfig.GetEnv("LOG_LEVEL", "info"), infraconfig.GetEnv("LOG_FORMAT", "json"))

	instancePath := infraconfig.GetEnv("OBSERVATORY_INSTANCES_FILE", "instances.yaml")
	lister := config.NewFileLister(instancePath)

	if _, err := lister.List(context.Background()); err != nil {
		logger.Fatal(context.Background(), "load instance config", err)
	}

	m := metrics.New("oracle-observatory")
	pool := chainrpc.NewPool()
	defer pool.Stop()
	store := storage.NewMemoryStore()

	engine := syncengine.NewEngine(pool, store, logger, m)

	sched := scheduler.New(engine, lister.List, logger, m, nil, nil)
	sched.SetSubTaskIntervals(
		config.RewardsSyncInterval(0),
		config.TVLSyncInterval(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	metricsAddr := infraconfig.GetEnv("OBSERVATORY_METRICS_ADDR", ":9090")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn(context.Background(), "metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info(context.Background(), "shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn(context.Background(), "scheduler stop did not complete cleanly", map[string]interface{}{"error": err.Error()})
	}
	_ = metricsServer.Shutdown(shutdownCtx)
}
