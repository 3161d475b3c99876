package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/pthm-cable/exposure/contaminant"
)

// Mailbox serialises calls into an instance onto its own goroutine, so the
// instance is only ever touched by one caller at a time.
type Mailbox struct {
	inbox   chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewMailbox starts a mailbox with the given queue depth.
func NewMailbox(depth int) *Mailbox {
	m := &Mailbox{
		inbox:   make(chan func(), depth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Mailbox) loop() {
	defer close(m.stopped)
	for {
		select {
		case fn := <-m.inbox:
			fn()
		case <-m.done:
			return
		}
	}
}

// Close stops the mailbox. Pending and later calls fail with ErrUnreachable.
func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.done) })
	<-m.stopped
}

type result[T any] struct {
	val T
	err error
}

// call runs fn on the mailbox goroutine and waits for its result.
func call[T any](ctx context.Context, m *Mailbox, fn func() (T, error)) (T, error) {
	var zero T
	reply := make(chan result[T], 1)
	job := func() {
		v, err := fn()
		reply <- result[T]{v, err}
	}

	select {
	case m.inbox <- job:
	case <-m.done:
		return zero, ErrUnreachable
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-m.stopped:
		return zero, ErrUnreachable
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
	}
}

// Do runs fn on the mailbox goroutine and returns its error.
func (m *Mailbox) Do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, m, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RemoteSource forwards Source queries through a mailbox.
type RemoteSource struct {
	mb  *Mailbox
	src Source
}

// NewRemoteSource serves src through mb.
func NewRemoteSource(mb *Mailbox, src Source) *RemoteSource {
	return &RemoteSource{mb: mb, src: src}
}

func (r *RemoteSource) HazardID(ctx context.Context, name string) (int, error) {
	return call(ctx, r.mb, func() (int, error) {
		return r.src.HazardID(ctx, name)
	})
}

func (r *RemoteSource) HazardReading(ctx context.Context, t float64, loc Location, id int) (float64, error) {
	return call(ctx, r.mb, func() (float64, error) {
		return r.src.HazardReading(ctx, t, loc, id)
	})
}

// RemoteProfile forwards profile reads through a mailbox.
type RemoteProfile struct {
	mb *Mailbox
	pp ProfileProvider
}

// NewRemoteProfile serves pp through mb.
func NewRemoteProfile(mb *Mailbox, pp ProfileProvider) *RemoteProfile {
	return &RemoteProfile{mb: mb, pp: pp}
}

func (r *RemoteProfile) ExportProfile(ctx context.Context) (*contaminant.Profile, error) {
	return call(ctx, r.mb, func() (*contaminant.Profile, error) {
		p, err := r.pp.ExportProfile(ctx)
		if err != nil {
			return nil, err
		}
		return p.Clone(), nil
	})
}
