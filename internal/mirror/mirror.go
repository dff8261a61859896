// Package mirror keeps read-only copies of platform relations for the admin
// views. A mirror never edits its rows in place: every change notification
// triggers a full reload and a wholesale replacement of the list.
package mirror

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/library-portal/internal/metrics"
	"github.com/example/library-portal/internal/platform"
)

// Platform is the slice of the platform client the mirrors and row actions
// use.
type Platform interface {
	Select(ctx context.Context, accessToken, relation string, opts platform.SelectOptions, dest any) error
	Update(ctx context.Context, accessToken, relation, id string, patch map[string]any) error
	Delete(ctx context.Context, accessToken, relation, id string) error
	SubscribeChanges(ctx context.Context, accessToken, relation string) (<-chan platform.Change, error)
}

// TokenFunc yields a currently valid access token. The session store's
// refresh path sits behind it, so long-lived mirrors survive token rotation.
type TokenFunc func(ctx context.Context) (string, error)

// Mirror holds the latest full snapshot of one relation.
type Mirror[T any] struct {
	relation  string
	load      func(ctx context.Context) ([]T, error)
	subscribe func(ctx context.Context) (<-chan platform.Change, error)
	logger    *slog.Logger

	mu      sync.Mutex
	rows    []T
	loading bool
	started uint64
	applied uint64
}

// Load fetches the relation and replaces the snapshot. Reloads may overlap;
// the one started last wins and earlier results are discarded. A failed load
// clears the loading flag but keeps the previous snapshot.
func (m *Mirror[T]) Load(ctx context.Context) error {
	m.mu.Lock()
	m.loading = true
	m.started++
	seq := m.started
	m.mu.Unlock()

	rows, err := m.load(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		return err
	}
	if seq <= m.applied {
		return nil
	}
	m.applied = seq
	m.rows = rows
	return nil
}

// Rows returns a copy of the current snapshot.
func (m *Mirror[T]) Rows() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]T, len(m.rows))
	copy(rows, m.rows)
	return rows
}

// Loading reports whether a load is in flight.
func (m *Mirror[T]) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Run performs the initial load, subscribes to change notifications, and
// reloads on every one, invoking onUpdate with the fresh snapshot each time
// a load succeeds. It blocks until ctx is done. One Run corresponds to one
// mounted admin view; row actions rely on the notification loop rather than
// editing the snapshot directly.
func (m *Mirror[T]) Run(ctx context.Context, onUpdate func([]T)) error {
	metrics.MirrorSubscribed()
	defer metrics.MirrorUnsubscribed()

	if err := m.Load(ctx); err != nil {
		m.logger.ErrorContext(ctx, "initial mirror load failed",
			"relation", m.relation, "error", err, "error_kind", platform.ErrorKind(err))
	} else {
		onUpdate(m.Rows())
	}

	changes, err := m.subscribe(ctx)
	if err != nil {
		return err
	}

	for range changes {
		if err := m.Load(ctx); err != nil {
			m.logger.ErrorContext(ctx, "mirror reload failed, keeping previous rows",
				"relation", m.relation, "error", err, "error_kind", platform.ErrorKind(err))
			continue
		}
		onUpdate(m.Rows())
	}
	return ctx.Err()
}
