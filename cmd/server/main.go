package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/roomchat/internal/server"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

// flags holds the global options shared by every command.
type flags struct {
	LogLevel   string
	LogFormat  string
	ConfigPath string
	Config     server.Config
}

func main() {
	if err := setupLogger("info", "console"); err != nil {
		panic(err)
	}

	f := &flags{}

	app := &cli.Command{
		Name:      "roomchat",
		Usage:     "Multi-room chat server",
		UsageText: "roomchat [global options] command [command options]",
		Version:   fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("ROOMCHAT_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log output format (console, json)",
				Sources:     cli.EnvVars("ROOMCHAT_LOG_FORMAT"),
				Value:       "console",
				Destination: &f.LogFormat,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a YAML config file; environment variables override it",
				Sources:     cli.EnvVars("ROOMCHAT_CONFIG"),
				Value:       "roomchat.yaml",
				Destination: &f.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := setupLogger(f.LogLevel, f.LogFormat); err != nil {
				return ctx, err
			}

			cfg, err := loadConfig(f.ConfigPath)
			if err != nil {
				return ctx, err
			}
			f.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCmd(f),
			migrateCmd(f),
			roomsCmd(f),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("roomchat failed")
		os.Exit(1)
	}
}

// loadConfig layers defaults, the optional file and the environment.
func loadConfig(path string) (server.Config, error) {
	cfg := server.DefaultConfig()
	if err := server.LoadFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	server.ApplyEnv(&cfg)
	return cfg.Sanitize(), nil
}

func setupLogger(level, format string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer
	switch format {
	case "json":
		output = os.Stderr
	case "console", "":
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger().Level(parsedLevel)
	return nil
}
