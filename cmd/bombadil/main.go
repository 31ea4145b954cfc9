// Command bombadil drives one exerciser run: load configuration,
// launch a headless browser, load a specification, and run the
// snapshot/verify/dispatch loop until every property is definite, a
// violation stops it, or the process receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/browsersm"
	"github.com/bombadil/exerciser/internal/common/logger"
	"github.com/bombadil/exerciser/internal/common/metricsserver"
	bombadilredis "github.com/bombadil/exerciser/internal/common/redis"
	"github.com/bombadil/exerciser/internal/common/requestid"
	"github.com/bombadil/exerciser/internal/common/urlutil"
	"github.com/bombadil/exerciser/internal/config"
	"github.com/bombadil/exerciser/internal/runner"
	"github.com/bombadil/exerciser/internal/telemetry"
	"github.com/bombadil/exerciser/internal/verifier"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: bombadil <config.yaml>")
		os.Exit(2)
	}

	bootLog, err := logger.NewDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bombadil: building bootstrap logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(os.Args[1], bootLog); err != nil {
		bootLog.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, bootLog *logger.DynamicLogger) error {
	mgr, err := config.Load(configPath, bootLog.Logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := mgr.Config()

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(ctx, cancel, log.Logger)

	specSource, err := os.ReadFile(cfg.SpecFile)
	if err != nil {
		return fmt.Errorf("reading spec file: %w", err)
	}

	v := verifier.New(log.Logger, verifier.CryptoByteSource{})
	if err := v.LoadSpecification(cfg.SpecFile, specSource); err != nil {
		return fmt.Errorf("loading specification: %w", err)
	}

	sm := browsersm.New(log.Logger, cfg.Browser, cfg.EdgeMap.Size, cfg.EntryURL)
	if err := sm.Initiate(ctx); err != nil {
		return fmt.Errorf("initiating browser: %w", err)
	}
	defer func() {
		if err := sm.Terminate(); err != nil {
			log.Warn("terminating browser", zap.Error(err))
		}
	}()

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.New(cfg.Metrics.Namespace, log.Logger)
		if _, err := metricsserver.StartMetricsServer(cfg.Metrics.Enabled, cfg.Metrics.Listen, cfg.Metrics.Path, metrics, log.Logger); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
	}

	runID := requestid.GenerateRequestID("")

	var trace *telemetry.TraceWriter
	if cfg.Trace.Enabled {
		trace, err = telemetry.NewTraceWriter(cfg.Trace.Dir, runID)
		if err != nil {
			return fmt.Errorf("opening trace writer: %w", err)
		}
		defer trace.Close()
	}

	var progress *telemetry.ProgressSink
	if cfg.Redis != nil {
		rdb, err := bombadilredis.NewClient(cfg.Redis, log.Logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		progress = telemetry.NewProgressSink(rdb, cfg.Origin, runID, log.Logger)
		defer progress.Close(context.Background())
	}

	originHost := cfg.Origin
	if originHost == "" {
		originHost = urlutil.ExtractHost(cfg.EntryURL)
	} else {
		originHost = urlutil.ExtractHost(originHost)
	}

	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	decidedReported := map[string]bool{}
	onEvent := func(ev runner.RunEvent) {
		if metrics != nil {
			metrics.SetCoverageEdges(ev.CoverageEdges)
			for _, p := range ev.Properties {
				if (p.Status == "True" || p.Status == "False") && !decidedReported[p.Name] {
					decidedReported[p.Name] = true
					metrics.RecordPropertyDecided(statusOutcomeLabel(p.Status))
				}
			}
			if ev.DispatchedNext != nil {
				metrics.RecordActionDispatched(string(ev.DispatchedNext.Kind))
			}
		}
		if trace != nil {
			if err := trace.Write(ev); err != nil {
				log.Warn("writing trace event", zap.Error(err))
			}
		}
		if progress != nil {
			decided := 0
			for _, p := range ev.Properties {
				if p.Status == "True" || p.Status == "False" {
					decided++
				}
			}
			if err := progress.Publish(context.Background(), ev.CoverageEdges, decided); err != nil {
				log.Warn("publishing progress", zap.Error(err))
			}
		}
	}

	r := runner.New(log.Logger, sm, v, originHost, cfg.StopOnViolation, rng, onEvent)

	summary, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("run loop: %w", err)
	}

	log.Info("run complete",
		zap.Int("steps", summary.Steps),
		zap.Int("coverage_edges", summary.CoverageEdges),
		zap.Bool("violated", summary.Violated),
		zap.String("violated_property", summary.ViolatedProperty),
		zap.String("witness", summary.Witness),
	)

	if summary.Violated {
		os.Exit(1)
	}
	return nil
}

func statusOutcomeLabel(status string) string {
	if status == "True" {
		return "true"
	}
	return "false"
}

func installSignalHandler(ctx context.Context, cancel context.CancelFunc, log *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received shutdown signal, stopping run", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
}
