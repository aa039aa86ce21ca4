// Package main provides the entrypoint for nearair.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/config"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// CLI is the command line of nearair. Settings are shared by every command.
type CLI struct {
	config.Config `embed:""`

	Version kong.VersionFlag `help:"Print the version and exit."`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Run the refresh loop and serve the HTTP API."`
	Once    OnceCmd    `cmd:"" help:"Run a single cycle and print the result."`
	Nearest NearestCmd `cmd:"" help:"Print the sensor nearest to a coordinate."`
	Token   TokenCmd   `cmd:"" help:"Mint a bearer token for POST /v1/reset."`
	Reset   ResetCmd   `cmd:"" help:"Ask a running instance to start over."`
}

// runtime is bound into every command's Run method.
type runtime struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name(config.ServiceName),
		kong.Description("Shows the air quality index of the nearest outdoor sensor."),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)
	if err := cli.Config.Validate(); err != nil {
		kctx.FatalIfErrorf(err)
	}

	log := newLogger(&cli.Config)
	log.Debug().
		Str("build_time", BuildTime).
		Str("command", kctx.Command()).
		Msg("starting nearair")

	kctx.FatalIfErrorf(kctx.Run(&runtime{cfg: &cli.Config, log: log}))
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", config.ServiceName).
		Str("version", Version).
		Logger()
}
