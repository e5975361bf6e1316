// Package events publishes PubFlow auth events to NATS so other services
// can react to logins, logouts and invalidated sessions.
//
// Example:
//
//	cfg, _ := events.NewConfigFromEnv()
//	pub, err := events.NewPublisher(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pub.Close()
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://api.example.com").
//	    WithEventPublisher(pub))
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/pubflow/pubflow-go/sdk"
)

// Publisher delivers auth events to NATS. It implements
// sdk.EventPublisher.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config *Config
	logger logrus.FieldLogger
	owned  bool
}

var _ sdk.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to NATS and, with JetStream enabled, creates or
// updates the event stream.
func NewPublisher(config *Config, logger logrus.FieldLogger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("NATS error")
		}),
	}
	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p, err := NewPublisherFromConn(nc, config, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewPublisherFromConn uses an existing connection. Close leaves the
// connection open.
func NewPublisherFromConn(nc *nats.Conn, config *Config, logger logrus.FieldLogger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Publisher{nc: nc, config: config, logger: logger}
	if !config.JetStream {
		return p, nil
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	p.js = js
	if err := p.initializeStream(); err != nil {
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) initializeStream() error {
	streamConfig := &nats.StreamConfig{
		Name:        p.config.StreamName,
		Description: "PubFlow auth events",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   nats.LimitsPolicy,
		MaxAge:      p.config.StreamMaxAge,
		Replicas:    p.config.StreamReplicas,
		Duplicates:  time.Minute,
		Storage:     nats.FileStorage,
	}

	if _, err := p.js.AddStream(streamConfig); err != nil {
		if _, err := p.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create/update stream: %w", err)
		}
	}
	return nil
}

// Publish sends event on its subject. With JetStream it waits for the
// stream acknowledgement.
func (p *Publisher) Publish(ctx context.Context, event sdk.AuthEvent) error {
	msg := NewMessage(event)
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal auth event: %w", err)
	}
	subject := Subject(p.config.SubjectPrefix, event.Type)

	if _, ok := ctx.Deadline(); !ok && p.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.PublishTimeout)
		defer cancel()
	}

	if p.js == nil {
		if err := p.nc.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish auth event: %w", err)
		}
		return p.nc.FlushWithContext(ctx)
	}

	pubAck, err := p.js.PublishAsync(subject, data, nats.MsgId(msg.ID))
	if err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}
	select {
	case <-pubAck.Ok():
		return nil
	case err := <-pubAck.Err():
		return fmt.Errorf("auth event publish failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler processes one received event.
type Handler func(ctx context.Context, event sdk.AuthEvent) error

// Subscribe delivers every event under the subject prefix to handler.
// Handler errors and undecodable messages are logged and dropped.
func (p *Publisher) Subscribe(handler Handler) (*nats.Subscription, error) {
	sub, err := p.nc.Subscribe(p.config.SubjectPrefix+".>", func(m *nats.Msg) {
		msg, err := UnmarshalMessage(m.Data)
		if err != nil {
			p.logger.WithError(err).WithField("subject", m.Subject).Warn("Dropping undecodable auth event")
			return
		}
		if err := handler(context.Background(), msg.Event()); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"subject": m.Subject,
				"id":      msg.ID,
			}).Warn("Auth event handler failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// Health checks the NATS connection health
func (p *Publisher) Health() error {
	if !p.nc.IsConnected() {
		return errors.New("NATS is not connected")
	}
	if p.js != nil {
		if _, err := p.js.AccountInfo(); err != nil {
			return fmt.Errorf("JetStream health check failed: %w", err)
		}
	}
	return nil
}

// StreamInfo returns information about the event stream.
func (p *Publisher) StreamInfo() (*nats.StreamInfo, error) {
	if p.js == nil {
		return nil, errors.New("JetStream is disabled")
	}
	return p.js.StreamInfo(p.config.StreamName)
}

// Close closes the NATS connection when the publisher opened it.
func (p *Publisher) Close() error {
	if p.owned && p.nc != nil {
		p.nc.Close()
	}
	return nil
}
