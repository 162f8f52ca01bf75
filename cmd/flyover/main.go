// Package main is the entry point for the terrain flyover viewer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/hgt-flyover/internal/catalog"
	"github.com/Faultbox/hgt-flyover/internal/config"
	"github.com/Faultbox/hgt-flyover/internal/controls"
	"github.com/Faultbox/hgt-flyover/internal/fetch"
	"github.com/Faultbox/hgt-flyover/internal/heightmap"
	"github.com/Faultbox/hgt-flyover/internal/logger"
	"github.com/Faultbox/hgt-flyover/internal/telemetry"
	"github.com/Faultbox/hgt-flyover/internal/viewer"
	"github.com/Faultbox/hgt-flyover/internal/world"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== HGT Flyover ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("viewer error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("viewer closed normally")
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Fetch.URLTemplate != "" {
		prefetch(ctx, cfg)
	}

	norm, err := normalizer(ctx, cfg)
	if err != nil {
		return err
	}

	loader := heightmap.NewLoader(cfg.Data.Dir, cfg.Data.TileSize, cfg.Data.Default.Coord(), norm)
	loader.Cache = heightmap.NewCache(cfg.Data.CacheTiles)
	w := world.New(loader, worldOptions(cfg), logger.Named("stream"))

	var hub *telemetry.Hub
	if cfg.Telemetry.Listen != "" {
		hub = telemetry.NewHub(cfg.Telemetry.Hz, logger.Named("telemetry"))
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.Telemetry.Listen); err != nil {
				logger.Error("telemetry server stopped", zap.Error(err))
			}
		}()
	}

	v, err := viewer.New(viewer.Config{
		Title:         "HGT Flyover",
		Width:         cfg.Window.Width,
		Height:        cfg.Window.Height,
		Fullscreen:    cfg.Window.Fullscreen,
		VSync:         cfg.Window.VSync,
		Samples:       cfg.Window.Samples,
		ScreenshotDir: "screenshots",
		Tuning:        controls.DefaultTuning(),
	}, w, hub)
	if err != nil {
		return fmt.Errorf("failed to create viewer: %w", err)
	}
	defer v.Close()

	return v.Run(ctx)
}

func worldOptions(cfg *config.Config) world.Options {
	return world.Options{
		Start:          cfg.Data.Start.Coord(),
		TileSize:       cfg.Data.TileSize,
		MaxRetries:     cfg.Data.MaxRetries,
		ChunkSize:      cfg.Terrain.ChunkSize,
		XChunks:        cfg.Terrain.XChunks,
		ZChunks:        cfg.Terrain.ZChunks,
		VerticalOffset: float32(cfg.Terrain.VerticalOffset),
		LOD:            cfg.Terrain.LOD,
		Minimized:      cfg.Terrain.Minimized,
		WaterEnabled:   cfg.Terrain.WaterEnabled,
		WaterLevel:     float32(cfg.Terrain.WaterLevel),
		VerticalScale:  float32(cfg.Terrain.VerticalScale),
		Colormap:       cfg.Terrain.Colormap,
	}
}

// normalizer builds the height normalizer. In global mode a configured
// catalog is rescanned and its range replaces the configured one.
func normalizer(ctx context.Context, cfg *config.Config) (heightmap.Normalizer, error) {
	mode, err := heightmap.ParseMode(cfg.Data.Normalization.Mode)
	if err != nil {
		return heightmap.Normalizer{}, err
	}
	norm := heightmap.Normalizer{
		Mode:   mode,
		Global: heightmap.Range{Min: cfg.Data.Normalization.Min, Max: cfg.Data.Normalization.Max},
	}
	if mode != heightmap.ModeGlobal || cfg.Data.Catalog == "" {
		return norm, nil
	}

	cat, err := catalog.Open(cfg.Data.Catalog)
	if err != nil {
		return norm, fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	report, err := cat.Scan(ctx, cfg.Data.Dir)
	if err != nil {
		return norm, fmt.Errorf("scan %s: %w", cfg.Data.Dir, err)
	}
	logger.Info("catalog scanned",
		zap.Int("scanned", report.Scanned),
		zap.Int("unchanged", report.Unchanged),
		zap.Duration("took", report.Took))

	rng, err := cat.GlobalRange(ctx)
	switch {
	case errors.Is(err, catalog.ErrEmpty):
		logger.Warn("catalog empty, using configured range",
			zap.Float64("min", norm.Global.Min),
			zap.Float64("max", norm.Global.Max))
		return norm, nil
	case err != nil:
		return norm, err
	}
	norm.Global = rng
	logger.Info("global normalization range", zap.Float64("min", rng.Min), zap.Float64("max", rng.Max))
	return norm, nil
}

// prefetch downloads missing tiles around the start tile. Failures only log:
// missing tiles fall back to the default tile at load time.
func prefetch(ctx context.Context, cfg *config.Config) {
	f := &fetch.Fetcher{URLTemplate: cfg.Fetch.URLTemplate, Dir: cfg.Data.Dir}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	results, err := f.Fetch(ctx, fetch.Plan(cfg.Data.Start.Coord(), cfg.Fetch.Radius))
	if err != nil {
		logger.Warn("prefetch aborted", zap.Error(err))
	}
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("prefetch failed", zap.String("tile", r.Coord.Stem()), zap.Error(r.Err))
		}
	}
}
