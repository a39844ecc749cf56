package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/duskmoth/replybot/pkg/config"
	"github.com/duskmoth/replybot/pkg/engine"
	"github.com/duskmoth/replybot/pkg/health"
	"github.com/duskmoth/replybot/pkg/knowledge"
	"github.com/duskmoth/replybot/pkg/platform"
	"github.com/duskmoth/replybot/pkg/preview"
	"github.com/duskmoth/replybot/pkg/publish"
	"github.com/duskmoth/replybot/pkg/research"
	"github.com/duskmoth/replybot/pkg/search"
	"github.com/duskmoth/replybot/pkg/source"
	"github.com/duskmoth/replybot/pkg/tracking"

	gen "github.com/duskmoth/replybot/pkg/generate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reply loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := setupLogger()
		app, err := buildApp(log)
		if err != nil {
			return err
		}
		defer app.close()
		if app.cfg.Source.Mode != source.ModePoll {
			return errors.New("once only supports poll mode")
		}
		app.engine.RunCycle(cmd.Context())
		return nil
	},
}

// app holds the wired components for one process.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	engine   *engine.Engine
	webhook  *source.WebhookSource
	stream   *source.StreamSource
	counters *health.Counters
	cache    *research.Cache
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.stream != nil {
		a.stream.Close()
	}
}

// searchRouter adapts the search provider chain to the knowledge pipeline.
type searchRouter struct {
	cfg *search.Config
}

func (r searchRouter) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	return search.Search(ctx, req, r.cfg)
}

func buildApp(log zerolog.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	storePath := tracking.ResolveStorePath(cfg.Tracking.Path)
	state, err := tracking.Load(storePath)
	if err != nil {
		return nil, err
	}
	if cfg.Tracking.RetentionDays > 0 {
		maxAge := time.Duration(cfg.Tracking.RetentionDays) * 24 * time.Hour
		if removed := state.Prune(maxAge, time.Now()); removed > 0 {
			log.Info().Int("removed", removed).Msg("Pruned stale tracking entries")
		}
	}

	client := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.BearerToken, cfg.Platform.TimeoutSecs, log)

	var cache *research.Cache
	cachePath := cfg.Research.CachePath
	if cachePath == "" {
		cachePath = filepath.Join(filepath.Dir(storePath), "research.db")
	}
	cache, err = research.OpenCache(cachePath, cfg.Research.CacheTTLSecs, log)
	if err != nil {
		log.Warn().Err(err).Msg("Research cache unavailable, lookups will not be cached")
		cache = nil
	}

	var previews *preview.Fetcher
	if cfg.Knowledge.EnrichPreviews {
		previews = preview.NewFetcher(log)
	}

	builder := knowledge.NewBuilder(client, searchRouter{cfg: &cfg.Search}, cache, previews, nil, cfg.Knowledge, log)
	generator := gen.NewGenerator(cfg.Generate, log)
	publisher := publish.NewPublisher(client, log)
	counters := health.NewCounters()

	a := &app{cfg: cfg, log: log, counters: counters, cache: cache}

	var src source.Source
	switch cfg.Source.Mode {
	case source.ModeWebhook:
		a.webhook = source.NewWebhookSource(log)
		src = a.webhook
	case source.ModeStream:
		a.stream = source.NewStreamSource(cfg.Source.StreamURL, log)
		src = a.stream
	default:
		src = source.NewPollSource(client, cfg.Handle, state.Cursor, log)
	}

	a.engine = engine.New(cfg.Engine, cfg.Filter, src, state, storePath, builder, generator, publisher, counters, log)
	return a, nil
}

func runServe(ctx context.Context) error {
	log := setupLogger()
	app, err := buildApp(log)
	if err != nil {
		return err
	}
	defer app.close()
	cfg := app.cfg

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", health.NewHandler(app.counters))
	if app.webhook != nil {
		mux.Handle("POST "+cfg.Source.Path, app.webhook)
	}

	listen := cfg.Health.Listen
	if app.webhook != nil {
		listen = cfg.Source.Listen
	}
	if listen != "" {
		server := &http.Server{Addr: listen, Handler: mux}
		go func() {
			log.Info().Str("listen", listen).Msg("HTTP server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("mode", cfg.Source.Mode).Str("handle", "@"+cfg.Handle).Msg("replybot starting")
	switch cfg.Source.Mode {
	case source.ModePoll:
		return app.engine.RunPoll(ctx, cfg.Source.Schedule)
	case source.ModeWebhook, source.ModeStream:
		return app.engine.RunPush(ctx)
	default:
		return fmt.Errorf("unknown source mode %q", cfg.Source.Mode)
	}
}
