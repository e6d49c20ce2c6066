package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/rill/internal/engine"
)

// Journal is a kernel hook that writes one tick row per finished tick.
//
// Hooks cannot fail a tick, so write errors are logged.
type Journal struct {
	engine.BaseHooks

	store   *Store
	log     *slog.Logger
	timeout time.Duration
}

// NewJournal creates a journal writing to s.
func NewJournal(s *Store, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{store: s, log: log, timeout: 5 * time.Second}
}

// OnTickEnd implements engine.Hooks.
func (j *Journal) OnTickEnd(info engine.TickInfo, stats engine.TickStats) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	rec := TickRecord{
		ScopeID: info.Scope,
		Seq:     info.Seq,
		Steps:   stats.Steps,
		Effects: stats.Effects,
		Failed:  stats.Failed,
		Aborted: stats.Aborted,
	}
	if info.Root != nil {
		rec.Root = info.Root.Name
		rec.RootKind = info.Root.Kind
	}

	if err := j.store.WriteTick(ctx, rec); err != nil {
		j.log.Error("journal write failed",
			"scope", info.Scope,
			"seq", info.Seq,
			"error", err,
		)
	}
}
