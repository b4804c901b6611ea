// Package events publishes "node tagged" notifications to NATS.
//
// The publisher is a graph observer: every successful append is sent as a
// JSON Event on the configured subject. Publishing is best-effort; a failure
// is logged and never fails the submission.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ppiankov/epimap/internal/logging"
	"github.com/ppiankov/epimap/internal/model"
)

// DefaultSubject is used when none is configured
const DefaultSubject = "epimap.node.tagged"

// EventNodeTagged is the Event.Type for appended nodes
const EventNodeTagged = "node.tagged"

// Event is the message body published for each appended node
type Event struct {
	Type      string      `json:"type"`
	Node      model.Node  `json:"node"`
	Link      *model.Link `json:"link"`
	Published time.Time   `json:"published_at"`
}

// Publisher sends node events to NATS
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
	owned   bool
}

// Connect dials url and returns a publisher that owns the connection
func Connect(url, subject string, logger *zap.Logger) (*Publisher, error) {
	logger = logging.OrNop(logger)
	nc, err := nats.Connect(url,
		nats.Name("epimap"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p, err := NewPublisher(nc, subject, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewPublisher(nc *nats.Conn, subject string, logger *zap.Logger) (*Publisher, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{
		nc:      nc,
		subject: subject,
		logger:  logging.OrNop(logger),
	}, nil
}

// Subject returns the subject events are published on
func (p *Publisher) Subject() string {
	return p.subject
}

// Publish sends one event
func (p *Publisher) Publish(node model.Node, link *model.Link) error {
	data, err := json.Marshal(Event{
		Type:      EventNodeTagged,
		Node:      node,
		Link:      link,
		Published: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// OnAppend implements graph.Observer
func (p *Publisher) OnAppend(node model.Node, link *model.Link) {
	if err := p.Publish(node, link); err != nil {
		p.logger.Warn("node event not published", zap.String("node_id", node.ID), zap.Error(err))
	}
}

// Close flushes pending events and closes the connection if the publisher owns it
func (p *Publisher) Close() error {
	if !p.owned {
		return p.nc.Flush()
	}
	return p.nc.Drain()
}

// Subscribe decodes events on subject and passes them to handler.
// Messages that are not valid events are skipped.
func Subscribe(nc *nats.Conn, subject string, handler func(Event)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
