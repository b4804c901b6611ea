// Package pipeline turns submitted passages into graph nodes: validate,
// classify, build the node, append it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/epimap/internal/classify"
	"github.com/ppiankov/epimap/internal/graph"
	"github.com/ppiankov/epimap/internal/logging"
	"github.com/ppiankov/epimap/internal/metrics"
	"github.com/ppiankov/epimap/internal/model"
)

// Pipeline orchestrates tagging of a single passage
type Pipeline struct {
	classifier    *classify.Classifier
	graph         *graph.Graph
	maxTags       int
	maxTextLength int
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMetrics records detection latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrNop(l) }
}

// WithClock overrides the node timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDFunc overrides node id generation
func WithIDFunc(newID func() string) Option {
	return func(p *Pipeline) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// New creates a pipeline over a classifier and graph
func New(cls *classify.Classifier, g *graph.Graph, cfg model.EngineConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier:    cls,
		graph:         g,
		maxTags:       cfg.MaxTagsPerText,
		maxTextLength: cfg.MaxTextLength,
		logger:        zap.NewNop(),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         NewNodeID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classifier returns the classifier in use
func (p *Pipeline) Classifier() *classify.Classifier {
	return p.classifier
}

// Graph returns the graph nodes are appended to
func (p *Pipeline) Graph() *graph.Graph {
	return p.graph
}

// MaxTextLength returns the accepted submission length in characters
func (p *Pipeline) MaxTextLength() int {
	return p.maxTextLength
}

// Result is the outcome of tagging one passage
type Result struct {
	Node     model.Node
	Link     *model.Link
	Duration time.Duration
}

// Detection is a classified passage not yet appended to the graph
type Detection struct {
	Text     string
	Tags     []model.Tag
	Duration time.Duration
}

// TagText validates, classifies and appends one passage
func (p *Pipeline) TagText(ctx context.Context, text string) (*Result, error) {
	d, err := p.Detect(ctx, text)
	if err != nil {
		return nil, err
	}
	return p.Commit(d)
}

// Detect validates and classifies text without touching the graph.
// It is safe to call concurrently.
func (p *Pipeline) Detect(ctx context.Context, text string) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed, err := ValidateText(text, p.maxTextLength)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tags := p.classifier.Detect(trimmed)
	elapsed := time.Since(start)
	p.metrics.ObserveDetect(elapsed)

	return &Detection{Text: trimmed, Tags: tags, Duration: elapsed}, nil
}

// Commit builds a node from a detection and appends it to the graph
func (p *Pipeline) Commit(d *Detection) (*Result, error) {
	start := time.Now()
	node := BuildNode(d.Tags, d.Text, p.maxTags, p.now(), p.newID)

	link, err := p.graph.Append(node)
	if err != nil {
		return nil, fmt.Errorf("append node: %w", err)
	}

	total := d.Duration + time.Since(start)
	p.logger.Debug("passage tagged",
		zap.String("node_id", node.ID),
		zap.Int("tags", len(node.Tags)),
		zap.String("top", topLabel(node.Tags)),
		zap.Duration("duration", total),
	)

	return &Result{Node: node, Link: link, Duration: total}, nil
}

func topLabel(tags []model.Tag) string {
	if len(tags) == 0 {
		return ""
	}
	return tags[0].Category.Label()
}
