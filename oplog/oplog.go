// Package oplog wires structured logging into the CLI: flag definitions, a
// level/format config, and handler construction on top of the geth logger.
package oplog

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

const (
	LevelFlagName  = "log.level"
	FormatFlagName = "log.format"
	ColorFlagName  = "log.color"
)

const (
	FormatText     = "text"
	FormatTerminal = "terminal"
	FormatJSON     = "json"
)

func CLIFlags(envPrefix string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    LevelFlagName,
			Usage:   "The lowest log level that will be output",
			Value:   "info",
			EnvVars: []string{envPrefix + "_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    FormatFlagName,
			Usage:   "Format the log output. Supported formats: 'text', 'terminal', 'json'",
			Value:   FormatText,
			EnvVars: []string{envPrefix + "_LOG_FORMAT"},
		},
		&cli.BoolFlag{
			Name:    ColorFlagName,
			Usage:   "Color the log output if in terminal mode",
			EnvVars: []string{envPrefix + "_LOG_COLOR"},
		},
	}
}

type CLIConfig struct {
	Level  slog.Level
	Format string
	Color  bool
}

func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		Level:  log.LevelInfo,
		Format: FormatText,
	}
}

func ReadCLIConfig(ctx *cli.Context) (CLIConfig, error) {
	cfg := DefaultCLIConfig()
	level, err := LevelFromString(ctx.String(LevelFlagName))
	if err != nil {
		return CLIConfig{}, err
	}
	cfg.Level = level
	cfg.Format = ctx.String(FormatFlagName)
	switch cfg.Format {
	case FormatText, FormatTerminal, FormatJSON:
	default:
		return CLIConfig{}, fmt.Errorf("unrecognized log format: %s", cfg.Format)
	}
	cfg.Color = ctx.Bool(ColorFlagName)
	return cfg, nil
}

// LevelFromString returns the appropriate Level from a string name.
// Useful for parsing command line args and configuration files.
func LevelFromString(lvlString string) (slog.Level, error) {
	switch strings.ToLower(lvlString) {
	case "trace", "trce":
		return log.LevelTrace, nil
	case "debug", "dbug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error", "eror":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelDebug, fmt.Errorf("unknown level: %v", lvlString)
	}
}

func (cfg CLIConfig) Handler(wr io.Writer) slog.Handler {
	switch cfg.Format {
	case FormatJSON:
		return slog.NewJSONHandler(wr, &slog.HandlerOptions{Level: cfg.Level})
	case FormatTerminal:
		return log.NewTerminalHandlerWithLevel(wr, cfg.Level, cfg.Color)
	default:
		return slog.NewTextHandler(wr, &slog.HandlerOptions{Level: cfg.Level})
	}
}

// NewLogger creates a logger based on the supplied configuration.
func NewLogger(wr io.Writer, cfg CLIConfig) log.Logger {
	return log.NewLogger(cfg.Handler(wr))
}

// SetGlobalLogHandler sets the log handler for the geth global logger, so
// logs emitted by dependencies follow the configured format and level.
func SetGlobalLogHandler(h slog.Handler) {
	log.SetDefault(log.NewLogger(h))
}
