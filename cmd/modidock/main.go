package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpdzap/modidock/internal/config"
	"github.com/zpdzap/modidock/internal/logging"
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// globals are the flags every subcommand shares.
type globals struct {
	configPath string
	debug      bool
	logLevel   string
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "modidock",
		Short:         "Edit allowlisted config files in container volumes and restart their containers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := g.logLevel
			if g.debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", envOr("MODIDOCK_CONFIG", config.DefaultPath), "Container registry document (json, jsonc or yaml)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", envOr("MODIDOCK_LOG_LEVEL", logging.LevelInfo), "Log level: debug, info, warn, error")

	cmd.AddCommand(
		serveCmd(g),
		checkCmd(g),
		initCmd(g),
		restartCmd(g),
		tuiCmd(g),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := envOr(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration", "env", key, "value", v)
		return fallback
	}
	return d
}

func envInt64(key string, fallback int64) int64 {
	v := envOr(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("ignoring invalid integer", "env", key, "value", v)
		return fallback
	}
	return n
}

// defaultAddr honors PORT for platforms that inject it.
func defaultAddr() string {
	if addr := envOr("MODIDOCK_ADDR", ""); addr != "" {
		return addr
	}
	return ":" + envOr("PORT", "8080")
}
