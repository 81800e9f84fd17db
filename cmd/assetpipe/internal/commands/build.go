package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

type BuildCmd struct {
	DescriptorFlags `embed:""`

	NoMinify  bool `help:"disable minification" env:"ASSETPIPE_NO_MINIFY"`
	Compress  bool `help:"write .gz and .zst sidecars for text outputs" env:"ASSETPIPE_COMPRESS"`
	Telemetry bool `help:"export build metrics and traces over OTLP" env:"ASSETPIPE_TELEMETRY"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting build")

	if c.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "assetpipe",
			Version:     globals.Version,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}()
		}
	}

	desc, err := c.load()
	if err != nil {
		return err
	}
	if c.NoMinify {
		minify := false
		desc.Minify = &minify
	}
	if c.Compress {
		desc.Compress = true
	}

	pipeline, err := assets.New(desc)
	if err != nil {
		return fmt.Errorf("failed to create assets pipeline: %w", err)
	}

	if err := pipeline.Build(ctx); err != nil {
		return fmt.Errorf("failed to build assets: %w", err)
	}

	for _, e := range desc.Entries {
		scripts, _, err := pipeline.LoadScripts(e.Name)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", e.Name)
		for _, s := range scripts {
			fmt.Printf("  script     %s\n", s)
		}
		if css, ok, err := pipeline.Stylesheet(e.Name); err == nil && ok {
			fmt.Printf("  stylesheet %s\n", css)
		}
	}

	return nil
}
