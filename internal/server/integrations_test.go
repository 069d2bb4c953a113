/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/friendsincode/receiver_portal/internal/config"
	"github.com/friendsincode/receiver_portal/internal/events"
	"github.com/friendsincode/receiver_portal/internal/media"
)

func TestAssetStatusWithoutStorage(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/v1/assets/status", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAssetStatusAndMediaServing(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "portal_loop.mp4"), []byte("loop"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, func(c *config.Config) { c.MediaRoot = root })

	rr := do(t, srv, http.MethodGet, "/api/v1/assets/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Assets  []media.AssetStatus `json:"assets"`
		Missing []string            `json:"missing"`
	}
	decodeInto(t, rr, &resp)
	if len(resp.Assets) != len(media.DefaultAssets()) {
		t.Fatalf("assets = %d", len(resp.Assets))
	}
	if !resp.Assets[0].Available || resp.Assets[0].ID != media.ElementPrimary {
		t.Fatalf("primary = %+v", resp.Assets[0])
	}
	if len(resp.Missing) != len(resp.Assets)-1 {
		t.Fatalf("missing = %v", resp.Missing)
	}

	rr = do(t, srv, http.MethodGet, "/media/portal_loop.mp4", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "loop" {
		t.Fatalf("media status = %d body=%q", rr.Code, rr.Body.String())
	}
	rr = do(t, srv, http.MethodGet, "/media/absent.wav", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("absent media status = %d", rr.Code)
	}
}

func TestPublishHealth(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.NodeID = "node-test" })
	sub := srv.Bus().Subscribe(events.EventHealth)
	defer srv.Bus().Unsubscribe(events.EventHealth, sub)

	createVirtual(t, srv)
	srv.publishHealth()

	select {
	case p := <-sub:
		if p["node_id"] != "node-test" || p["sessions"] != 1 {
			t.Fatalf("payload = %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no health event")
	}
}

func TestUnreachableBrokersAreSkipped(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.NATSURL = "nats://127.0.0.1:1"
	})
	if srv.exporter != nil {
		t.Fatal("exporter created without a reachable broker")
	}
}
