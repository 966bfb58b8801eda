// Command roomhub runs the real-time topic hub.
//
// It supports two commands:
//  1. "serve" (default) runs the HTTP server exposing the WebSocket endpoint,
//     the admin REST API, Prometheus metrics and an /mcp HTTP endpoint
//  2. "mcp" runs an MCP stdio server against a roomhub API, starting an
//     internal server when none answers
//
// Settings come from an optional YAML file; flags and ROOMHUB_* environment
// variables override the most common ones. A .env file in the working
// directory is loaded first when present.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/roomhub/realtime/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "roomhub"
)

// Flags holds the global flag values shared by every command.
type Flags struct {
	ConfigPath string
	Addr       string
	LogLevel   string
	Ngrok      bool
	APIURL     string

	Config config.Config
	Logger zerolog.Logger
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newApp(&Flags{}).Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("roomhub failed")
	}
}

func newApp(flags *Flags) *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "Real-time topic hub over WebSocket",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to the YAML config file",
				Sources:     cli.EnvVars("ROOMHUB_CONFIG"),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address, overrides server.addr",
				Sources:     cli.EnvVars("ROOMHUB_ADDR"),
				Destination: &flags.Addr,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error), overrides log.level",
				Sources:     cli.EnvVars("ROOMHUB_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return ctx, flags.setup(os.Stderr)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the hub with its WebSocket, REST, metrics and MCP endpoints",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "ngrok",
						Usage:       "expose the server through an ngrok tunnel (NGROK_AUTHTOKEN required)",
						Sources:     cli.EnvVars("NGROK_ENABLED"),
						Destination: &flags.Ngrok,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runServe(ctx, flags)
				},
			},
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server backed by the roomhub REST API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "api-url",
						Usage:       "base URL of a running roomhub server",
						Sources:     cli.EnvVars("ROOMHUB_API_URL"),
						Value:       "http://localhost:8080",
						Destination: &flags.APIURL,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runMCP(ctx, flags)
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, flags)
		},
	}
}

// setup loads the config, applies flag overrides and installs the logger.
func (f *Flags) setup(w io.Writer) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.Addr != "" {
		cfg.Server.Addr = f.Addr
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return err
	}
	log.Logger = logger

	f.Config = cfg
	f.Logger = logger
	return nil
}

// newLogger builds a zerolog logger writing to w. Format "console" is
// human-readable; anything else writes JSON lines.
func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to parse log level: %w", err)
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
