package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/shaonghosh/simsurvey/internal/config"
	"github.com/shaonghosh/simsurvey/internal/instrument"
	"github.com/shaonghosh/simsurvey/internal/metrics"
	"github.com/shaonghosh/simsurvey/internal/opsim"
	"github.com/shaonghosh/simsurvey/internal/plan"
	"github.com/shaonghosh/simsurvey/internal/survey"
	"github.com/shaonghosh/simsurvey/internal/transient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})).With("run_id", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listen error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	p, err := buildPlan(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build observation plan", "error", err)
		os.Exit(1)
	}
	logger.Info("plan ready",
		"pointings", p.Len(),
		"bands", p.Bands(),
		"custom_pointings", p.SentinelCount(),
	)

	set, err := buildInstruments(cfg)
	if err != nil {
		logger.Error("invalid instrument configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.BlindedBias) > 0 {
		set.SetBlindedBias(cfg.BlindedBias)
		logger.Info("blinded zero-point bias enabled", "bands", len(cfg.BlindedBias))
	}

	gen, err := transient.NewGenerator(transient.GeneratorConfig{
		Count:          cfg.Generator.Count,
		RAMin:          cfg.Generator.RAMin,
		RAMax:          cfg.Generator.RAMax,
		DecMin:         cfg.Generator.DecMin,
		DecMax:         cfg.Generator.DecMax,
		ZMin:           cfg.Generator.ZMin,
		ZMax:           cfg.Generator.ZMax,
		EpochMin:       cfg.Generator.EpochMin,
		EpochMax:       cfg.Generator.EpochMax,
		AmplitudeMean:  cfg.Generator.AmplitudeMean,
		AmplitudeSigma: cfg.Generator.AmplitudeSigma,
		MWEBV:          cfg.Generator.MWEBV,
		Seed:           cfg.Generator.Seed,
	})
	if err != nil {
		logger.Error("invalid generator configuration", "error", err)
		os.Exit(1)
	}

	model, err := transient.NewGaussianBurst(cfg.Model.Width, cfg.Model.Throughput)
	if err != nil {
		logger.Error("invalid model configuration", "error", err)
		os.Exit(1)
	}

	runner := survey.NewRunner(p, set, gen, model, survey.Config{
		Workers: cfg.Workers,
		Seed:    cfg.Seed,
	}, logger)

	logger.Info("starting survey simulation",
		"transients", gen.Count(),
		"workers", cfg.Workers,
	)
	lcs, err := runner.Run(ctx)
	if err != nil {
		logger.Error("survey run failed", "error", err)
		os.Exit(1)
	}

	if err := lcs.Save(cfg.OutputPath); err != nil {
		logger.Error("failed to save lightcurves", "error", err, "path", cfg.OutputPath)
		os.Exit(1)
	}
	logger.Info("lightcurves saved",
		"path", cfg.OutputPath,
		"lightcurves", lcs.Len(),
	)
}

// buildPlan loads the plan from an opsim file when one is configured.
func buildPlan(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*plan.Plan, error) {
	if cfg.Plan.OpsimPath == "" {
		return nil, errors.New("plan.opsim_path must be set")
	}
	return opsim.Load(ctx, cfg.Plan.OpsimPath, opsim.Options{
		Table:        cfg.Plan.OpsimTable,
		ZP:           cfg.Plan.ZP,
		DefaultDepth: cfg.Plan.DefaultDepth,
		BandMap:      cfg.Plan.BandMap,
		Width:        cfg.Plan.FieldWidth,
		Height:       cfg.Plan.FieldHeight,
	}, logger)
}

func buildInstruments(cfg *config.Config) (*instrument.Set, error) {
	set := instrument.NewSet()
	for band, ic := range cfg.Instruments {
		if err := set.Add(band, instrument.Spec{
			Gain:     ic.Gain,
			ZP:       ic.ZP,
			ZPSys:    ic.ZPSys,
			ErrCalib: ic.ErrCalib,
		}); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
