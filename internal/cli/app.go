package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ppiankov/epimap/internal/cache"
	"github.com/ppiankov/epimap/internal/catalogue"
	"github.com/ppiankov/epimap/internal/classify"
	"github.com/ppiankov/epimap/internal/events"
	"github.com/ppiankov/epimap/internal/graph"
	"github.com/ppiankov/epimap/internal/logging"
	"github.com/ppiankov/epimap/internal/metrics"
	"github.com/ppiankov/epimap/internal/model"
	"github.com/ppiankov/epimap/internal/pipeline"
	"github.com/ppiankov/epimap/internal/store"
)

// app is the wired process: one classifier, one graph and its observers
type app struct {
	cfg       *model.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	graph     *graph.Graph
	pipeline  *pipeline.Pipeline
	journal   *store.Journal
	publisher *events.Publisher
}

// newApp builds the pipeline from cfg. A journal, when configured, is
// replayed into the graph before the first append.
func newApp(cfg *model.Config, logOut io.Writer) (*app, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, logOut)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	cat, err := catalogue.Default()
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	var clsOpts []classify.Option
	if cfg.Engine.CacheTTL > 0 {
		clsOpts = append(clsOpts, classify.WithCache(cache.NewMemoryCache(cfg.Engine.CacheTTL, 2*cfg.Engine.CacheTTL), cfg.Engine.CacheTTL))
	}
	cls, err := classify.New(cat, cfg.Engine.MinConfidenceThreshold, clsOpts...)
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	graphOpts := []graph.Option{graph.WithObserver(a.metrics)}

	if path := cfg.Storage.JournalPath; path != "" {
		a.journal, err = store.Open(path, logger)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		graphOpts = append(graphOpts, graph.WithObserver(a.journal))
	}

	if url := cfg.Events.NATSURL; url != "" {
		a.publisher, err = events.Connect(url, cfg.Events.Subject, logger)
		if err != nil {
			return nil, fmt.Errorf("connect events: %w", err)
		}
		graphOpts = append(graphOpts, graph.WithObserver(a.publisher))
	}

	a.graph = graph.New(graphOpts...)

	if a.journal != nil {
		snap, err := a.journal.Load()
		if err != nil {
			return nil, fmt.Errorf("replay journal: %w", err)
		}
		if err := a.graph.Restore(snap); err != nil {
			return nil, fmt.Errorf("restore graph: %w", err)
		}
		logger.Info("journal replayed",
			zap.String("path", cfg.Storage.JournalPath),
			zap.Int("nodes", len(snap.Nodes)),
		)
	}
	a.metrics.SetGraphNodes(a.graph.Len())

	a.pipeline = pipeline.New(cls, a.graph, cfg.Engine,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(logger),
	)

	ready = true
	return a, nil
}

// Close releases the journal and the NATS connection
func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
