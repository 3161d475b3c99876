// Package store persists world checkpoints.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pthm-cable/exposure/pack"
)

// ErrNotInitialized is returned by operations on a store before Init.
var ErrNotInitialized = errors.New("store: not initialized")

// Checkpoint is one serialized world state.
type Checkpoint struct {
	Run     string
	Tick    int32
	Time    float64
	Payload []byte
}

// Store defines checkpoint persistence operations.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, run string, tick int32) (Checkpoint, bool, error)
	Latest(ctx context.Context, run string) (Checkpoint, bool, error)
	List(ctx context.Context, run string) ([]int32, error)
	Close() error
}

// encodeRecord packs the time and payload of a checkpoint for the
// key-value backends, which carry run and tick in the key.
func encodeRecord(cp Checkpoint) []byte {
	w := pack.NewWriter()
	w.Float64(cp.Time)
	w.Part(cp.Payload)
	return w.Bytes()
}

func decodeRecord(run string, tick int32, data []byte) (Checkpoint, error) {
	r := pack.NewReader(data)
	t, err := r.Float64()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s/%d: %w", run, tick, err)
	}
	payload, err := r.Required()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s/%d: %w", run, tick, err)
	}
	if err := r.Done(); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s/%d: %w", run, tick, err)
	}
	return Checkpoint{Run: run, Tick: tick, Time: t, Payload: append([]byte(nil), payload...)}, nil
}

// tickKey formats a tick so that lexical order matches numeric order.
func tickKey(tick int32) string {
	return fmt.Sprintf("%010d", tick)
}
