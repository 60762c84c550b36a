// Package events publishes agent run progress to NATS.
//
// Events are published as JSON to subjects of the form:
//
//	{prefix}.{run_id}.{kind}
//
// for example helpdesk.runs.7f9c....subtask.finished. Subscribers follow a
// single run with {prefix}.{run_id}.> or everything with {prefix}.>.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/config"
	"github.com/fyrsmithlabs/helpdesk/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when the configured prefix is empty.
const DefaultSubjectPrefix = "helpdesk.runs"

// Publisher forwards agent events to NATS. Publishing failures are logged
// and never returned to the engine.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
	owned  bool
}

// Connect dials cfg.URL and returns a Publisher that owns the connection.
func Connect(cfg config.NATSConfig, logger *logging.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats.url is required when nats.enabled is set")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("helpdesk"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	p := NewPublisher(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of
// nc.
func NewPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an event of kind for runID is published to.
func (p *Publisher) Subject(runID string, kind agent.EventKind) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, runID, kind)
}

// Publish sends one event.
func (p *Publisher) Publish(e agent.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(e.RunID, e.Kind), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Kind, err)
	}
	return nil
}

// Progress adapts the publisher to agent.ProgressFunc.
func (p *Publisher) Progress() agent.ProgressFunc {
	return func(e agent.Event) {
		if err := p.Publish(e); err != nil {
			ctx := logging.WithRunID(context.Background(), e.RunID)
			p.logger.Warn(ctx, "failed to publish run event",
				zap.String("kind", string(e.Kind)),
				zap.Error(err),
			)
		}
	}
}

// Close flushes pending events and closes the connection when the
// publisher owns it.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.FlushTimeout(2 * time.Second)
	if p.owned {
		p.nc.Close()
	}
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}
