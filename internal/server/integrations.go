/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/friendsincode/receiver_portal/internal/eventbus"
	"github.com/friendsincode/receiver_portal/internal/events"
	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
	"github.com/friendsincode/receiver_portal/internal/version"
)

const heartbeatInterval = 30 * time.Second

// setupIntegrations connects optional media storage and event brokers. Broker
// connection failures are logged and the broker is skipped; storage errors are
// fatal because the operator asked for a preflight.
func (s *Server) setupIntegrations(ctx context.Context) error {
	if st := s.cfg.Storage(); st.Enabled() {
		storage, err := media.NewStorage(ctx, st, s.logger)
		if err != nil {
			return err
		}
		s.storage = storage
		if fs, ok := storage.(*media.FilesystemStorage); ok {
			s.mediaFS = http.StripPrefix(media.URLPrefix, http.FileServer(http.Dir(fs.Root())))
		}
	}

	var pubs []eventbus.Publisher
	if s.cfg.RedisAddr != "" {
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = s.cfg.RedisAddr
		rc.Password = s.cfg.RedisPassword
		rc.DB = s.cfg.RedisDB
		if p, err := eventbus.NewRedisPublisher(ctx, rc, s.logger); err != nil {
			s.logger.Warn().Err(err).Msg("Redis unavailable, event export to Redis disabled")
		} else {
			pubs = append(pubs, p)
		}
	}
	if s.cfg.NATSURL != "" {
		nc := eventbus.DefaultNATSConfig()
		nc.URL = s.cfg.NATSURL
		nc.Token = s.cfg.NATSToken
		if p, err := eventbus.NewNATSPublisher(nc, s.logger); err != nil {
			s.logger.Warn().Err(err).Msg("NATS unavailable, event export to NATS disabled")
		} else {
			pubs = append(pubs, p)
		}
	}
	if len(pubs) > 0 {
		cfg := eventbus.DefaultConfig()
		cfg.NodeID = s.cfg.NodeID
		cfg.Prefix = s.cfg.EventsPrefix
		s.exporter = eventbus.NewExporter(s.bus, cfg, s.logger, pubs...)
		s.DeferClose(s.exporter.Close)
	}
	return nil
}

// heartbeat publishes node health on the bus until ctx is done.
func (s *Server) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishHealth()
		}
	}
}

func (s *Server) publishHealth() {
	s.bus.Publish(events.EventHealth, events.Payload{
		"node_id":  s.cfg.NodeID,
		"sessions": s.sessions.Len(),
		"version":  version.Version,
		"uptime_s": int64(time.Since(s.started).Seconds()),
	})
}

// preflight checks the catalog against storage and records the result.
func (s *Server) preflight(ctx context.Context) []media.AssetStatus {
	statuses := media.Preflight(ctx, s.storage, s.exp.Assets)
	missing := media.Missing(statuses)
	telemetry.AssetsMissing.Set(float64(len(missing)))
	if len(missing) > 0 {
		s.logger.Warn().Strs("assets", missing).Msg("catalog assets missing from media storage")
	} else {
		s.logger.Debug().Int("assets", len(statuses)).Msg("asset preflight passed")
	}
	return statuses
}

func (s *Server) startupPreflight(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.storage.CheckAccess(cctx); err != nil {
		s.logger.Warn().Err(err).Msg("media storage not accessible")
		return
	}
	s.preflight(cctx)
}

func (s *Server) handleAssetStatus(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		writeError(w, http.StatusNotFound, "storage_not_configured")
		return
	}
	statuses := s.preflight(r.Context())
	missing := media.Missing(statuses)
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets":  statuses,
		"missing": missing,
	})
}
