package main

import (
	"fmt"
	"os"

	"github.com/book-expert/chapter-audio-service/internal/config"
	"github.com/book-expert/logger"
	"github.com/spf13/cobra"
)

const (
	bootstrapLogFile = "chapter-audio-bootstrap.log"
	serviceLogFile   = "chapter-audio.log"
)

// commandContext carries the flags shared by every subcommand.
type commandContext struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "chapter-audio",
		Short:         "Chapter narration and audio version control",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "",
		"Configuration file path (defaults to the project configurator lookup)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newCheckProviderCommand(ctx))
	rootCmd.AddCommand(newChapterCommand(ctx))

	return rootCmd
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// loadConfig loads configuration with a bootstrap logger, then opens the
// service logger under the configured logs directory. The caller closes it.
func (c *commandContext) loadConfig() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, nil, err
	}

	defer closeLogger(bootstrapLog)

	var cfg *config.Config

	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	log, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, err
	}

	return cfg, log, nil
}

func closeLogger(log *logger.Logger) {
	err := log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
	}
}
