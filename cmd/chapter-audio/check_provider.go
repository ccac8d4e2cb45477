package main

import (
	"fmt"

	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/tts"
	"github.com/spf13/cobra"
)

func newCheckProviderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check-provider",
		Short: "Verify the speech provider is reachable with the configured key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			defer closeLogger(log)

			// The health probe never touches the artifact store.
			gateway := tts.NewGateway(newProvider(cfg), nil, catalog.Default(), nil, log, tts.GatewayConfig{
				ProviderTimeout: cfg.ProviderTimeout(),
			})

			err = gateway.HealthCheck(cmd.Context())
			if err != nil {
				log.Error("Speech provider health check failed: %v", err)

				return fmt.Errorf("speech provider at %s is not healthy: %w", cfg.TTS.BaseURL, err)
			}

			log.Info("Speech provider at %s is healthy", cfg.TTS.BaseURL)
			fmt.Fprintf(cmd.OutOrStdout(), "Speech provider at %s is healthy\n", cfg.TTS.BaseURL)

			return nil
		},
	}
}
