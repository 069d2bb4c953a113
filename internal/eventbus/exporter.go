/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards portal events from the in-process bus to
// external brokers (Redis pub/sub, NATS) for dashboards and analytics.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/events"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
)

// Publisher delivers encoded events to one broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Message is the envelope written to brokers.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Config controls what is exported and how failures are handled.
type Config struct {
	NodeID string
	Prefix string
	Types  []events.EventType

	// Circuit breaker: after MaxFailures consecutive errors a publisher is
	// skipped for RetryAfter.
	MaxFailures    int
	RetryAfter     time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig exports every portal event type.
func DefaultConfig() Config {
	return Config{
		NodeID: "portal",
		Prefix: "portal.events",
		Types: []events.EventType{
			events.EventSessionCreated,
			events.EventSessionClosed,
			events.EventTransition,
			events.EventCue,
			events.EventBridgeOutcome,
			events.EventHealth,
		},
		MaxFailures:    5,
		RetryAfter:     30 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}

// Subject returns the broker subject (or Redis channel) for an event type.
func Subject(prefix string, t events.EventType) string {
	return prefix + "." + string(t)
}

type breaker struct {
	pub       Publisher
	fails     int
	openUntil time.Time
}

// Exporter subscribes to the bus and forwards each event to every publisher.
type Exporter struct {
	bus    *events.Bus
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	pubs []*breaker
}

// NewExporter creates an exporter. Zero config fields take their defaults.
func NewExporter(bus *events.Bus, cfg Config, logger zerolog.Logger, pubs ...Publisher) *Exporter {
	def := DefaultConfig()
	if cfg.NodeID == "" {
		cfg.NodeID = def.NodeID
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if len(cfg.Types) == 0 {
		cfg.Types = def.Types
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = def.RetryAfter
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	e := &Exporter{
		bus:    bus,
		cfg:    cfg,
		logger: logger.With().Str("component", "eventbus").Logger(),
		now:    time.Now,
	}
	for _, p := range pubs {
		e.pubs = append(e.pubs, &breaker{pub: p})
	}
	return e
}

// Run forwards events until ctx is done.
func (e *Exporter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	subs := make(map[events.EventType]events.Subscriber, len(e.cfg.Types))
	for _, t := range e.cfg.Types {
		sub := e.bus.SubscribeBuffered(t, 64)
		subs[t] = sub
		wg.Add(1)
		go func(t events.EventType, sub events.Subscriber) {
			defer wg.Done()
			for payload := range sub {
				e.Export(context.WithoutCancel(ctx), t, payload)
			}
		}(t, sub)
	}

	e.logger.Info().Int("publishers", len(e.pubs)).Str("prefix", e.cfg.Prefix).Msg("event export started")
	<-ctx.Done()

	for t, sub := range subs {
		e.bus.Unsubscribe(t, sub)
	}
	wg.Wait()
	e.logger.Info().Msg("event export stopped")
}

// Export encodes one event and hands it to every publisher whose breaker is closed.
func (e *Exporter) Export(ctx context.Context, t events.EventType, payload events.Payload) {
	data, err := json.Marshal(Message{
		EventType: t,
		Payload:   payload,
		Timestamp: e.now().UTC(),
		NodeID:    e.cfg.NodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event")
		return
	}
	subject := Subject(e.cfg.Prefix, t)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.pubs {
		name := b.pub.Name()
		if e.now().Before(b.openUntil) {
			telemetry.EventsExportedTotal.WithLabelValues(name, "skipped").Inc()
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
		err := b.pub.Publish(pctx, subject, data)
		cancel()
		if err != nil {
			telemetry.EventsExportedTotal.WithLabelValues(name, "failed").Inc()
			b.fails++
			e.logger.Debug().Err(err).Str("broker", name).Str("subject", subject).Msg("publish failed")
			if b.fails >= e.cfg.MaxFailures {
				b.openUntil = e.now().Add(e.cfg.RetryAfter)
				b.fails = 0
				e.logger.Warn().Str("broker", name).Dur("retry_after", e.cfg.RetryAfter).
					Msg("broker failure threshold reached, pausing export")
			}
			continue
		}
		b.fails = 0
		telemetry.EventsExportedTotal.WithLabelValues(name, "published").Inc()
	}
}

// Close closes every publisher.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, b := range e.pubs {
		if err := b.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", b.pub.Name(), err))
		}
	}
	return errors.Join(errs...)
}
