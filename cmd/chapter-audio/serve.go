package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/api"
	"github.com/book-expert/chapter-audio-service/internal/artifact"
	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/chapters"
	"github.com/book-expert/chapter-audio-service/internal/config"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/messaging"
	"github.com/book-expert/chapter-audio-service/internal/observe"
	"github.com/book-expert/chapter-audio-service/internal/tts"
	"github.com/book-expert/chapter-audio-service/internal/versioning"
	"github.com/book-expert/chapter-audio-service/internal/worker"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var errNATSDisconnected = errors.New("nats connection is not established")

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the NATS worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			defer closeLogger(log)

			return runServe(cmd.Context(), cfg, log)
		},
	}
}

// service holds the long-lived components of a running instance.
type service struct {
	store    core.ArtifactStore
	repo     core.ChapterRepository
	gateway  *tts.Gateway
	manager  *versioning.Manager
	registry *catalog.Registry
	nc       *nats.Conn
	provider *observe.Provider
	closers  []func() error
}

func (s *service) close(log *logger.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		err := s.closers[i]()
		if err != nil {
			log.Warn("Shutdown step failed: %v", err)
		}
	}
}

func runServe(parent context.Context, cfg *config.Config, log *logger.Logger) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}

	defer svc.close(log)

	server := api.NewServer(api.Dependencies{
		Manager:        svc.manager,
		Synthesizer:    svc.gateway,
		Store:          svc.store,
		Catalog:        svc.registry,
		Authenticator:  api.NewTokenAuthenticator(cfg.Auth.Tokens),
		Metrics:        svc.metrics(),
		Log:            log,
		MetricsHandler: svc.metricsHandler(),
		MetricsPath:    cfg.Metrics.Path,
		Checkers:       svc.checkers(),
	}, api.Options{
		ListenAddr:      cfg.Server.ListenAddr,
		PublicBaseURL:   cfg.Server.PublicBaseURL,
		ReadTimeout:     seconds(cfg.Server.ReadTimeoutSeconds),
		WriteTimeout:    seconds(cfg.Server.WriteTimeoutSeconds),
		ShutdownTimeout: seconds(cfg.Server.ShutdownTimeoutSeconds),
	})

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Run(groupCtx)
	})

	if svc.nc != nil {
		natsWorker := worker.NewNatsWorker(svc.nc, cfg.NATS.GenerateSubject, cfg.NATS.QueueGroup,
			svc.manager, log, seconds(cfg.Server.WriteTimeoutSeconds), worker.WithMaxInFlight(cfg.NATS.MaxInFlight))

		group.Go(func() error {
			return natsWorker.Run(groupCtx)
		})
	}

	log.System("Chapter audio service %s started on %s (storage=%s, database=%s, nats=%t)",
		version, cfg.Server.ListenAddr, cfg.Storage.Backend, cfg.Database.Driver, cfg.NATS.Enabled)

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Service stopped with error: %v", err)

		return err
	}

	log.System("Chapter audio service stopped")

	return nil
}

// buildService wires storage, persistence, synthesis and messaging from cfg.
// On error every component opened so far is closed.
func buildService(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *service, err error) {
	svc := &service{registry: catalog.Default()}

	defer func() {
		if err != nil {
			svc.close(log)
		}
	}()

	if cfg.Metrics.Enabled {
		svc.provider, err = observe.InitProvider(observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}

		svc.closers = append(svc.closers, func() error {
			return svc.provider.Shutdown(context.Background())
		})
	}

	if cfg.NATS.Enabled {
		svc.nc, err = nats.Connect(cfg.NATS.URL, nats.Name("chapter-audio-service"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}

		svc.closers = append(svc.closers, func() error {
			svc.nc.Close()

			return nil
		})
	}

	svc.store, err = openStore(svc.nc, cfg, log)
	if err != nil {
		return nil, err
	}

	err = svc.store.EnsureReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifact store is not ready: %w", err)
	}

	svc.repo, err = openRepository(ctx, cfg, log, &svc.closers)
	if err != nil {
		return nil, err
	}

	svc.gateway = tts.NewGateway(newProvider(cfg), svc.store, svc.registry, svc.metrics(), log, tts.GatewayConfig{
		ProviderTimeout:   cfg.ProviderTimeout(),
		MinAudioBytes:     cfg.TTS.MinAudioBytes,
		PlaceholderLength: cfg.PlaceholderLength(),
	})

	var publisher core.EventPublisher = messaging.NopPublisher{}
	if svc.nc != nil {
		publisher = messaging.NewNatsPublisher(svc.nc, cfg.NATS.GeneratedSubject, log)
	}

	svc.manager = versioning.NewManager(svc.repo, svc.gateway, svc.store, svc.registry, publisher, log,
		versioning.WithMetrics(svc.metrics()))

	return svc, nil
}

func openStore(nc *nats.Conn, cfg *config.Config, log *logger.Logger) (core.ArtifactStore, error) {
	if cfg.Storage.Backend != config.StorageNATS {
		return artifact.NewFileStore(cfg.Storage.AudioDir, log), nil
	}

	if nc == nil {
		return nil, errNATSDisconnected
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return artifact.NewNatsStore(js, cfg.Storage.NATSBucket, log), nil
}

func openRepository(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	closers *[]func() error,
) (core.ChapterRepository, error) {
	if cfg.Database.Driver == config.DatabaseMemory {
		log.Warn("Using the in-memory chapter repository; chapters are lost on restart")

		return chapters.NewMemoryRepository(), nil
	}

	repo, err := chapters.OpenSQLite(ctx, cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}

	*closers = append(*closers, repo.Close)

	return repo, nil
}

func newProvider(cfg *config.Config) *tts.HTTPClient {
	return tts.NewHTTPClient(cfg.TTS.BaseURL, cfg.ResolveAPIKey(), cfg.ProviderTimeout(),
		tts.WithModel(cfg.TTS.ModelID),
		tts.WithOutputFormat(cfg.TTS.OutputFormat),
	)
}

func (s *service) metrics() *observe.Metrics {
	if s.provider == nil {
		return observe.Discard()
	}

	return s.provider.Metrics
}

func (s *service) metricsHandler() http.Handler {
	if s.provider == nil {
		return nil
	}

	return s.provider.Handler
}

func (s *service) checkers() []api.Checker {
	checkers := []api.Checker{{Name: "storage", Check: s.store.EnsureReady}}

	if s.nc != nil {
		checkers = append(checkers, api.Checker{Name: "nats", Check: func(context.Context) error {
			if !s.nc.IsConnected() {
				return errNATSDisconnected
			}

			return nil
		}})
	}

	return checkers
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
