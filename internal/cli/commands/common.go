// Package commands implements the kitvision subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"

	"kitvision/internal/config"
)

type configKey struct{}

type configFileKey struct{}

type loggerKey struct{}

// WithConfig stores the loaded configuration and the file it came from.
func WithConfig(ctx context.Context, cfg *config.Config, file string) context.Context {
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return context.WithValue(ctx, configFileKey{}, file)
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return config.NewDefaultConfig()
}

// GetConfigFile returns the config file that was loaded, or "".
func GetConfigFile(ctx context.Context) string {
	f, _ := ctx.Value(configFileKey{}).(string)
	return f
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}
