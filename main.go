package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"perfsampler/collector"
	"perfsampler/config"
	"perfsampler/logger"
	"perfsampler/normstats"
	"perfsampler/sampler"
	"perfsampler/storage"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error setting up logger:", err)
		os.Exit(1)
	}

	log.SugaredLogger.Infow("sampler starting",
		"output", cfg.OutputPath,
		"duration", cfg.Duration,
		"interval", cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log.Logger)
	stop()
	if err != nil {
		log.Logger.Error("sampling failed", zap.Error(err))
		logger.Flush(log.Logger)
		os.Exit(1)
	}
	logger.Flush(log.Logger)
	fmt.Println(completionMessage(cfg.OutputPath))
}

func completionMessage(path string) string {
	return fmt.Sprintf("Data collection complete. Data saved to %s", path)
}

// run owns the output stores for the lifetime of one sampling run and
// releases them on every return path.
func run(ctx context.Context, cfg *config.Config, base *zap.Logger) (err error) {
	runID := uuid.NewString()
	log := logger.WithRun(base, runID)
	ctx = logger.WithContext(ctx, log)

	csvStore, err := storage.NewCSV(cfg.OutputPath)
	if err != nil {
		return err
	}
	stores := storage.Multi{csvStore}
	defer func() {
		if cerr := stores.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if cfg.DBPath != "" {
		db, dbErr := storage.NewSQLite(cfg.DBPath, runID, log)
		if dbErr != nil {
			return dbErr
		}
		stores = append(stores, db)
	}

	coll := collector.NewHostCollector(cfg.CPUWindow, cfg.DiskPath, log)
	s, err := sampler.New(sampler.Config{Duration: cfg.Duration, Interval: cfg.Interval}, coll, stores)
	if err != nil {
		return err
	}
	res, err := s.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.NormStatsPath == "" {
		return nil
	}
	if err := csvStore.Close(); err != nil {
		return err
	}
	st, err := normstats.FromFile(cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("compute normalization stats: %w", err)
	}
	if err := st.Write(cfg.NormStatsPath); err != nil {
		return err
	}
	log.Info("normalization stats saved", zap.String("path", cfg.NormStatsPath))

	if res.Ticks == 0 {
		return nil
	}
	z, err := st.Normalize(res.Last.Values())
	if err != nil {
		return fmt.Errorf("normalize last sample: %w", err)
	}
	log.Info("last sample normalized",
		zap.Strings("features", st.FeatureOrder),
		zap.Float64s("z", z))
	return nil
}
