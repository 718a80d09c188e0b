// Command weavesync runs the weaving surface capture pipeline: it samples the
// surface velocity sensor, integrates displacement, triggers two-light camera
// iterations, and ships picture batches and movement reports to the central
// server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/loomsight/weavesync/internal/config"
	"github.com/loomsight/weavesync/internal/dispatch"
	"github.com/loomsight/weavesync/internal/engine"
	"github.com/loomsight/weavesync/internal/hardware"
	"github.com/loomsight/weavesync/internal/httputil"
	"github.com/loomsight/weavesync/internal/metrics"
	"github.com/loomsight/weavesync/internal/monitoring"
	"github.com/loomsight/weavesync/internal/report"
	"github.com/loomsight/weavesync/internal/storage"
	"github.com/loomsight/weavesync/internal/timeutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "weavesync: %v\n", err)
		os.Exit(1)
	}
	log := monitoring.NewLogger(cfg.LogLevel)

	tuning := config.DefaultTuning()
	if cfg.TuningPath != "" {
		tuning, err = config.LoadTuning(cfg.TuningPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.TuningPath).Msg("tuning file rejected")
		}
		log.Info().Str("path", cfg.TuningPath).Msg("tuning loaded")
	}

	if err := run(cfg, tuning, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("weavesync exited")
	}
	log.Info().Msg("weavesync stopped")
}

func run(cfg *config.Config, tuning *config.Tuning, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}

	metricsSrv := metrics.Serve(cfg.ListenAddr)
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutCtx)
	}()
	log.Info().Str("addr", cfg.ListenAddr).Msg("metrics listening")

	var sensor hardware.VelocitySensor
	switch cfg.SensorMode {
	case config.SensorSerial:
		sensor = hardware.NewSerialSensor(cfg.SensorPort)
		log.Info().Str("port", cfg.SensorPort).Msg("using serial velocity sensor")
	default:
		sensor = hardware.NewSimSensor(30, time.Now().UnixNano())
		log.Info().Msg("using simulated velocity sensor")
	}
	cameras := hardware.NewSimCameras(time.Now().UnixNano())

	client := report.NewClient(
		cfg.ServerURL,
		httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second}),
		monitoring.Component(log, "report"),
	)

	// Preflight only; the dispatch path retries on its own, so an unreachable
	// server at startup is worth a warning, not an exit.
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := client.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("server", cfg.ServerURL).Msg("server unreachable at startup")
	} else {
		log.Info().Str("server", cfg.ServerURL).Msg("server reachable")
	}
	cancelPing()

	queue := dispatch.NewQueue(tuning.GetQueueCapacity())

	var deadLetter dispatch.DeadLetter
	if cfg.DeadLetterPath != "" {
		store, err := storage.OpenDeadLetter(cfg.DeadLetterPath)
		if err != nil {
			return fmt.Errorf("open dead letter spool: %w", err)
		}
		defer store.Close()
		deadLetter = store
		requeueSpooled(store, queue, tuning.GetQueueCapacity(), log)
	}

	pool := dispatch.NewPool(queue, client, deadLetter, clock, dispatch.PoolOptions{
		Workers:     tuning.GetWorkers(),
		Attempts:    tuning.GetRetryLimit(),
		BackoffBase: tuning.GetBackoffBase(),
		BackoffCap:  tuning.GetBackoffCap(),
		DrainGrace:  tuning.GetDrainGrace(),
	}, monitoring.Component(log, "dispatch"))

	filter := engine.NewVelocityFilter(tuning.GetFilterWindow(), tuning.GetMADMultiplier(), tuning.GetEWMAAlpha())
	sampler := engine.NewVelocitySampler(sensor, filter, clock, tuning.GetSampleInterval(), tuning.GetSensorErrorMax(), monitoring.Component(log, "sampler"))
	accum := engine.NewDisplacementAccumulator(filter, clock, tuning.GetSampleInterval())
	assembler := engine.NewBatchAssembler(queue, monitoring.Component(log, "assembler"))
	scheduler := engine.NewTriggerScheduler(
		cameras, filter, accum, assembler, clock,
		tuning.GetSampleInterval(), tuning.TriggerThresholdCm(),
		monitoring.Component(log, "scheduler"),
	)
	reporter := engine.NewStatusReporter(filter, accum, queue, clock, tuning.GetStatusPeriod(), monitoring.Component(log, "reporter"))

	log.Info().
		Float64("trigger_threshold_cm", tuning.TriggerThresholdCm()).
		Dur("sample_interval", tuning.GetSampleInterval()).
		Dur("status_period", tuning.GetStatusPeriod()).
		Msg("pipeline starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sampler.Run(gctx) })
	g.Go(func() error { return accum.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return reporter.Run(gctx) })
	g.Go(func() error { return pool.Run(gctx) })

	return g.Wait()
}

// requeueSpooled feeds batches left over from a previous run back into the
// queue. The spooled copy stays put until the pool confirms delivery, so a
// crash mid-flight cannot lose a batch; Spool is idempotent per batch id, so
// a failed re-delivery just lands on its own row again.
func requeueSpooled(store *storage.DeadLetterStore, queue *dispatch.Queue, limit int, log zerolog.Logger) {
	pending, err := store.Pending(limit)
	if err != nil {
		log.Error().Err(err).Msg("reading dead letter spool")
		return
	}
	requeued := 0
	for _, batch := range pending {
		if err := queue.EnqueueBatch(batch); err != nil {
			log.Warn().Err(err).Str("batch_id", batch.ID.String()).Msg("spooled batch stays spooled")
			continue
		}
		requeued++
	}
	if requeued > 0 {
		log.Info().Int("batches", requeued).Msg("re-queued spooled picture batches")
	}
}
