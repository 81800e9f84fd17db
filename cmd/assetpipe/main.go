package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/assetpipe/cmd/assetpipe/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug    bool                 `help:"Enable debug mode." env:"ASSETPIPE_DEBUG"`
		Version  kong.VersionFlag
		Build    commands.BuildCmd    `cmd:"" help:"Build the bundles described by the descriptor"`
		Classify commands.ClassifyCmd `cmd:"" help:"Show which transform rule applies to each path"`
		Serve    commands.ServeCmd    `cmd:"" help:"Serve the destination directory"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("assetpipe"),
		kong.Description("Front-end asset build pipeline driven by a declarative descriptor."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
