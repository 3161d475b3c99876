package world

import (
	"context"
	"encoding"
	"errors"
	"fmt"

	"github.com/pthm-cable/exposure/contaminant"
	"github.com/pthm-cable/exposure/exposure"
	"github.com/pthm-cable/exposure/pack"
	"github.com/pthm-cable/exposure/store"
)

// ErrNoCheckpoint is returned by Restore when the store holds no complete
// checkpoint for the run.
var ErrNoCheckpoint = errors.New("world: no checkpoint")

// A checkpoint at tick T is the instance records under
// <run>/instances/<name> plus a manifest under <run>/manifest listing the
// instances alive at T. The manifest is saved last, so a tick without one
// is incomplete.

func (w *World) manifestRun() string {
	return w.runID + "/manifest"
}

func (w *World) instanceRun(name string) string {
	return w.runID + "/instances/" + name
}

func encodeManifest(names []string) []byte {
	pw := pack.NewWriter()
	pw.Int(len(names))
	for _, n := range names {
		pw.String(n)
	}
	return pw.Bytes()
}

func decodeManifest(data []byte) ([]string, error) {
	r := pack.NewReader(data)
	n, err := r.Int()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative instance count %d", n)
	}
	names := make([]string, n)
	for i := range names {
		if names[i], err = r.String(); err != nil {
			return nil, err
		}
	}
	return names, r.Done()
}

// encodeInstance packs the member count and, for sinks, the controller,
// registry and profile of inst.
func (w *World) encodeInstance(inst instance) ([]byte, error) {
	pw := pack.NewWriter()
	pw.Float64(w.orgMap.Get(inst.entity).Members)
	if inst.exp == nil {
		pw.Absent()
		pw.Absent()
		pw.Absent()
		return pw.Bytes(), nil
	}
	ctrl := inst.exp.Controller
	for _, m := range []encoding.BinaryMarshaler{ctrl, ctrl.Registry(), ctrl.Profile()} {
		b, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		pw.Part(b)
	}
	return pw.Bytes(), nil
}

// Checkpoint saves every organism instance to st at the current tick.
func (w *World) Checkpoint(ctx context.Context, st store.Store) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.checkpoint(ctx, st)
}

func (w *World) checkpoint(ctx context.Context, st store.Store) (err error) {
	defer func() { w.metrics.ObserveCheckpoint(err) }()

	insts := w.sinks()
	names := make([]string, 0, len(insts))
	for _, inst := range insts {
		payload, err := w.encodeInstance(inst)
		if err != nil {
			return fmt.Errorf("encode %s: %w", inst.name, err)
		}
		if err := st.Save(ctx, store.Checkpoint{
			Run:     w.instanceRun(inst.name),
			Tick:    w.tick,
			Time:    w.simTime,
			Payload: payload,
		}); err != nil {
			return fmt.Errorf("save %s: %w", inst.name, err)
		}
		names = append(names, inst.name)
	}
	if err := st.Save(ctx, store.Checkpoint{
		Run:     w.manifestRun(),
		Tick:    w.tick,
		Time:    w.simTime,
		Payload: encodeManifest(names),
	}); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	w.logger.Info("checkpoint saved", "tick", w.tick, "sim_time", w.simTime, "run", w.runID, "instances", len(names))
	return nil
}

// LatestCheckpoint returns the newest complete checkpoint tick of the run.
func (w *World) LatestCheckpoint(ctx context.Context, st store.Store) (int32, bool, error) {
	ticks, err := st.List(ctx, w.manifestRun())
	if err != nil {
		return 0, false, err
	}
	if len(ticks) == 0 {
		return 0, false, nil
	}
	return ticks[len(ticks)-1], true, nil
}

// restored is one instance decoded from a checkpoint but not yet applied.
type restored struct {
	inst    instance
	members float64
	ctrl    *exposure.Controller // nil for instances without exposure
}

// Restore loads the checkpoint at tick and resets the clock to it.
// Instances that had died out by then are removed; every instance in the
// checkpoint must have been spawned. Controllers are rebuilt from their
// saved state and recompiled against the current configuration. All
// records are decoded before anything is applied, so a failed Restore
// leaves the world as it was.
func (w *World) Restore(ctx context.Context, st store.Store, tick int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	manifest, ok, err := st.Load(ctx, w.manifestRun(), tick)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: run %s at tick %d", ErrNoCheckpoint, w.runID, tick)
	}
	names, err := decodeManifest(manifest.Payload)
	if err != nil {
		return fmt.Errorf("decode manifest at tick %d: %w", tick, err)
	}

	spawned := make(map[string]instance)
	for _, inst := range w.sinks() {
		spawned[inst.name] = inst
	}
	alive := make(map[string]bool, len(names))
	decoded := make([]restored, 0, len(names))
	for _, name := range names {
		inst, ok := spawned[name]
		if !ok {
			return fmt.Errorf("checkpoint instance %s is not in the scenario", name)
		}
		cp, ok, err := st.Load(ctx, w.instanceRun(name), tick)
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s at tick %d", ErrNoCheckpoint, name, tick)
		}
		r, err := decodeInstance(inst, cp.Payload)
		if err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
		alive[name] = true
		decoded = append(decoded, r)
	}

	// Nothing below can fail on bad data; cancellation must not stop it
	// half way.
	ctx = context.WithoutCancel(ctx)
	for _, r := range decoded {
		if r.ctrl != nil {
			live := r.inst.exp.Controller
			if err := w.do(ctx, r.inst, func() error {
				live.Adopt(r.ctrl)
				return nil
			}); err != nil {
				return fmt.Errorf("restore %s: %w", r.inst.name, err)
			}
		}
		org := w.orgMap.Get(r.inst.entity)
		org.Members = r.members
		org.Alive = r.members > 0
		w.lifetimeTracker.UpdateMembers(r.inst.name, r.members)
	}
	for name, inst := range spawned {
		if !alive[name] {
			w.logger.Info("instance absent from checkpoint", "instance", name, "tick", tick)
			w.discard(inst)
		}
	}

	w.tick = tick
	w.simTime = manifest.Time
	w.collector.Reset(tick, manifest.Time)
	w.logger.Info("checkpoint restored", "tick", tick, "sim_time", manifest.Time, "run", w.runID, "instances", len(decoded))
	return nil
}

// decodeInstance rebuilds an instance's state into a fresh controller that
// shares the live controller's collaborators.
func decodeInstance(inst instance, payload []byte) (restored, error) {
	r := pack.NewReader(payload)
	members, err := r.Float64()
	if err != nil {
		return restored{}, err
	}
	parts := make([][]byte, 3)
	present := 0
	for i := range parts {
		p, ok, err := r.Part()
		if err != nil {
			return restored{}, err
		}
		if ok {
			parts[i] = p
			present++
		}
	}
	if err := r.Done(); err != nil {
		return restored{}, err
	}

	out := restored{inst: inst, members: members}
	if inst.exp == nil {
		if present != 0 {
			return restored{}, fmt.Errorf("checkpoint has exposure state but %s is not a sink", inst.name)
		}
		return out, nil
	}
	if present != len(parts) {
		return restored{}, fmt.Errorf("checkpoint of sink %s has no exposure state", inst.name)
	}

	ctrl := exposure.New(inst.exp.Controller.Deps)
	if err := ctrl.UnmarshalBinary(parts[0]); err != nil {
		return restored{}, err
	}
	if ctrl.Name() != inst.name {
		return restored{}, fmt.Errorf("checkpoint belongs to %s", ctrl.Name())
	}
	reg := contaminant.NewRegistry()
	if err := reg.UnmarshalBinary(parts[1]); err != nil {
		return restored{}, err
	}
	prof := contaminant.NewProfile()
	if err := prof.UnmarshalBinary(parts[2]); err != nil {
		return restored{}, err
	}
	if err := ctrl.Attach(reg, prof); err != nil {
		return restored{}, err
	}
	if err := ctrl.Reinitialize(); err != nil {
		return restored{}, err
	}
	if ctrl.OverridesMembers() {
		out.members = ctrl.Members()
	}
	out.ctrl = ctrl
	return out, nil
}
