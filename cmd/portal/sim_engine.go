/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/media/sim"
	"github.com/friendsincode/receiver_portal/internal/playout"
)

// simEngine returns an engine factory with start rejections and decode
// faults injected on the named elements.
func simEngine(blocked, failing []string) playout.EngineFactory {
	return func(assets []media.Asset, sink media.Sink) media.Engine {
		eng := sim.New(assets, sink)
		for _, id := range blocked {
			eng.Block(id, true)
		}
		for _, id := range failing {
			eng.Fail(id)
		}
		return eng
	}
}
