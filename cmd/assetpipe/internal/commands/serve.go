package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/wolfeidau/assetpipe/internal/assets"
	httpmiddleware "github.com/wolfeidau/assetpipe/internal/http"
	"github.com/wolfeidau/assetpipe/internal/logger"
)

type ServeCmd struct {
	DescriptorFlags `embed:""`

	Listen      string   `help:"HTTP server listen address" default:"127.0.0.1:8080" env:"ASSETPIPE_LISTEN"`
	CORSOrigins []string `help:"allowed CORS origins, fonts are blocked cross origin without them" default:"*" env:"ASSETPIPE_CORS_ORIGINS"`
	Build       bool     `help:"build before serving" default:"false"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	desc, err := c.load()
	if err != nil {
		return err
	}

	if c.Build {
		pipeline, err := assets.New(desc)
		if err != nil {
			return fmt.Errorf("failed to create assets pipeline: %w", err)
		}
		if err := pipeline.Build(ctx); err != nil {
			return fmt.Errorf("failed to build assets: %w", err)
		}
	}

	if info, err := os.Stat(desc.Dest); err != nil || !info.IsDir() {
		return fmt.Errorf("destination %s does not exist, run build first or pass --build", desc.Dest)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: c.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})

	handler := httpmiddleware.ClientIPMiddleware()(
		httpmiddleware.AccessLog(log)(
			corsMiddleware.Handler(httpmiddleware.PrecompressedFileServer(desc.Dest)),
		),
	)

	srv := configureHTTPServer(c.Listen, handler)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown server")
		}
	}()

	log.Info().Str("addr", c.Listen).Str("root", desc.Dest).Msg("Serving assets")
	return ignoreServerClosed(srv.ListenAndServe())
}
