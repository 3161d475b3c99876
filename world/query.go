package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/pthm-cable/exposure/agent"
	"github.com/pthm-cable/exposure/contaminant"
)

// ExportProfile reads the contaminant body burden of the named instance
// through its mailbox. It does not take the world lock, so it may be called
// while a step, checkpoint or restore is running; the read is queued behind
// the instance's pending work.
func (w *World) ExportProfile(ctx context.Context, name string) (*contaminant.Profile, error) {
	w.remoteMu.RLock()
	remote, ok := w.remotes[name]
	closed := w.remotes == nil
	w.remoteMu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoInstance, name)
	}

	qctx, cancel := w.queryContext(ctx)
	defer cancel()
	prof, err := remote.ExportProfile(qctx)
	if errors.Is(err, agent.ErrUnreachable) {
		w.metrics.IncUnreachable()
	}
	return prof, err
}

// Members returns the current member count of the named instance.
func (w *World) Members(name string) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entity, ok := w.names[name]
	if !ok || !w.orgMap.HasAll(entity) {
		return 0, fmt.Errorf("%w: %s", ErrNoInstance, name)
	}
	return w.orgMap.Get(entity).Members, nil
}
