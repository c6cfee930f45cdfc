package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/betterspeak/internal/app"
	"github.com/MrWong99/betterspeak/internal/config"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "betterspeak",
		Short: "Stuttering detection and PSS reporting",
		Long: `BetterSpeak records a speaker reading a reference text, runs one
classifier per disfluency type (interjection, prolongation, repetition)
over the recording and reports the percentage of stuttered syllables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to the YAML configuration file")

	root.AddCommand(newServeCmd(), newRecordCmd(), newVersionCmd())
	return root
}

// loadConfig reads the file named by --config. A missing default file falls
// back to built-in defaults; a missing explicit file is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	config.LoadDotEnv(".env")
	cfg = config.Default()
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cfg *config.Config) (*slog.Logger, *slog.LevelVar) {
	logger, level := app.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	return logger, level
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "betterspeak", version)
		},
	}
}
