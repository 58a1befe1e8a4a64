// Package nats publishes chat turn audit events to JetStream for
// downstream consumers. The publisher is optional: a nil *Publisher is
// valid and drops everything, so the chat path never depends on the
// broker being up.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

const (
	streamName    = "CHATEVENTS"
	subjectPrefix = "chat.events."
	eventMaxAge   = 7 * 24 * time.Hour
)

// Publisher wraps a NATS JetStream connection.
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// Connect dials the broker and ensures the event stream exists.
// Returns nil (not an error) when url is empty, so callers can pass
// the result straight through.
func Connect(url, token string, log *logger.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name("taskpilot-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	p := &Publisher{conn: conn, js: js, logger: log}
	if err := p.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("nats connected", zap.String("url", url), zap.String("stream", streamName))
	return p, nil
}

func (p *Publisher) ensureStream() error {
	cfg := &nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    eventMaxAge,
	}

	_, err := p.js.AddStream(cfg)
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		_, err = p.js.UpdateStream(cfg)
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", streamName, err)
	}
	return nil
}

// PublishTurnEvent publishes an audit event. Failures are logged, not
// returned: audit fan-out must never fail a chat turn.
func (p *Publisher) PublishTurnEvent(ctx context.Context, ev model.TurnEvent) {
	if p == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal turn event", zap.Error(err))
		return
	}

	subject := subjectPrefix + string(ev.Type)
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.logger.Warn("publish turn event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
