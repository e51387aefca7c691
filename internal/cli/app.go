package cli

import (
	"io"

	"covid-parser/internal/config"
	"covid-parser/internal/service"
	"covid-parser/pkg/logger"
	"covid-parser/pkg/metrics"
	"covid-parser/pkg/parser"
	"covid-parser/pkg/storage"
)

// App holds the wired components shared by every command.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Cache   *storage.FetchCache
	Metrics *metrics.Metrics
	Service *service.Service
}

type buildOptions struct {
	fetcher   storage.Fetcher
	logOutput io.Writer
	logLevel  string
}

// Option adjusts how Bootstrap wires the App.
type Option func(*buildOptions)

// WithFetcher replaces the fasthttp transport.
func WithFetcher(f storage.Fetcher) Option {
	return func(o *buildOptions) { o.fetcher = f }
}

// WithLogOutput sends logs to w instead of the configured sink.
func WithLogOutput(w io.Writer) Option {
	return func(o *buildOptions) { o.logOutput = w }
}

// WithLogLevel overrides logger.level from the config.
func WithLogLevel(level string) Option {
	return func(o *buildOptions) { o.logLevel = level }
}

// Bootstrap loads configuration and builds logger, transport, fetch cache,
// metrics and dispatcher in that order.
func Bootstrap(configPath string, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.NewManager().Load(configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logger.Level = o.logLevel
	}

	var log *logger.Logger
	if o.logOutput != nil {
		log = logger.NewWithWriter(cfg.Logger, o.logOutput)
	} else {
		log = logger.New(cfg.Logger)
	}
	logger.SetLogger(log)

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = parser.NewHTTPClient(parser.ClientConfig{
			Timeout:   cfg.HTTP.Timeout(),
			UserAgent: cfg.HTTP.UserAgent,
		})
	}

	cache := storage.NewFetchCache(fetcher, storage.Policy(cfg.Cache.Policy), cfg.Cache.Interval, storage.WithLogger(log))
	m := metrics.New(cache)
	svc := service.New(cache,
		service.WithEndpoints(cfg.Sources.Endpoints()),
		service.WithRecorder(m),
		service.WithLogger(log),
	)

	log.WithFields(map[string]interface{}{
		"policy":   storage.Policy(cfg.Cache.Policy).String(),
		"interval": cfg.Cache.Interval,
	}).Debug("Application wired")

	return &App{Config: cfg, Log: log, Cache: cache, Metrics: m, Service: svc}, nil
}
