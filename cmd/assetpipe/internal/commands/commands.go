package commands

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/config"
)

type Globals struct {
	Debug   bool
	Version string
}

// descriptorFiles are looked up in the working directory when --config is not set
var descriptorFiles = []string{"assetpipe.yaml", "assetpipe.yml", "assetpipe.hcl"}

// DescriptorFlags selects and overrides the build descriptor
type DescriptorFlags struct {
	Config string `help:"descriptor file (.yaml, .yml or .hcl), defaults to assetpipe.{yaml,yml,hcl} or the built-in descriptor" type:"path" env:"ASSETPIPE_CONFIG"`
	Dest   string `help:"override the destination directory" type:"path" env:"ASSETPIPE_DEST"`
}

func (f *DescriptorFlags) load() (*config.Descriptor, error) {
	path := f.Config
	if path == "" {
		for _, name := range descriptorFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}

	var (
		desc *config.Descriptor
		err  error
	)
	if path == "" {
		wd, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		log.Info().Str("dir", wd).Msg("No descriptor file found, using built-in descriptor")
		desc, err = config.LoadDefault(wd)
	} else {
		log.Info().Str("config", path).Msg("Loading descriptor")
		desc, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptor: %w", err)
	}

	if f.Dest != "" {
		desc.Dest, err = filepath.Abs(f.Dest)
		if err != nil {
			return nil, err
		}
	}

	return desc, nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
