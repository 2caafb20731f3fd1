// Package scene drives one collision world and one chase sequencer from a
// single tick call and publishes the result as replicated frame state.
package scene

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"chasescene/internal/chase"
	"chasescene/internal/physics"
	"chasescene/internal/shared/types"
)

const (
	DefaultMaxFrameDelta  = 0.1
	DefaultPhysicsMaxStep = 1.0 / 120.0
)

// Event types carried in FrameState.Events.
const (
	EventStateChange = "state_change"
	EventDecision    = "decision"
	EventFinished    = "finished"
	EventWallBounce  = "wall_bounce"
	EventCollision   = "collision"
	EventReset       = "reset"
)

var ErrNegativeDelta = errors.New("scene: negative frame delta")

var axisNames = [3]string{"x", "y", "z"}

// Settings is everything needed to build a scene.
type Settings struct {
	ID      string
	Chase   chase.Config
	Physics physics.Config
	Bodies  []physics.Body
	// MaxFrameDelta caps a single tick; longer frames are shortened.
	MaxFrameDelta float64
	// PhysicsMaxStep is the largest physics sub-step.
	PhysicsMaxStep float64
	// Clock samples the wall clock once per tick. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultSettings returns the stock night-chase scene.
func DefaultSettings() Settings {
	return Settings{
		ID:             "night-chase",
		Chase:          chase.DefaultConfig(),
		Physics:        physics.DefaultConfig(),
		Bodies:         physics.DefaultBodies(),
		MaxFrameDelta:  DefaultMaxFrameDelta,
		PhysicsMaxStep: DefaultPhysicsMaxStep,
	}
}

// Scene is the authoritative scene state.
type Scene struct {
	mu       sync.RWMutex
	settings Settings
	world    *physics.World
	seq      *chase.Sequencer
	elapsed  float64

	held    types.KeyState
	edges   types.KeyState
	pending []types.SceneEvent

	state types.FrameState
}

// New builds the world and the sequencer described by s.
func New(s Settings) (*Scene, error) {
	if s.MaxFrameDelta <= 0 {
		s.MaxFrameDelta = DefaultMaxFrameDelta
	}
	if s.PhysicsMaxStep <= 0 {
		s.PhysicsMaxStep = DefaultPhysicsMaxStep
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	s.Bodies = append([]physics.Body(nil), s.Bodies...)

	sc := &Scene{settings: s}
	if err := sc.build(); err != nil {
		return nil, err
	}
	sc.state = types.FrameState{
		SceneID:   s.ID,
		CreatedAt: s.Clock().UTC(),
	}
	sc.publish(0, nil)
	return sc, nil
}

func (sc *Scene) build() error {
	world, err := physics.NewWorld(sc.settings.Physics, sc.settings.Bodies...)
	if err != nil {
		return fmt.Errorf("scene %s: %w", sc.settings.ID, err)
	}
	seq, err := chase.NewSequencer(sc.settings.Chase)
	if err != nil {
		return fmt.Errorf("scene %s: %w", sc.settings.ID, err)
	}
	sc.world = world
	sc.seq = seq
	sc.elapsed = 0
	return nil
}

// ApplyInput stores the latest held key state. A key that goes down since the
// previous call counts as pressed on the next tick, even if it is released
// again before that tick runs.
func (sc *Scene) ApplyInput(keys types.KeyState) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.edges.Left = sc.edges.Left || (keys.Left && !sc.held.Left)
	sc.edges.Right = sc.edges.Right || (keys.Right && !sc.held.Right)
	sc.edges.Proceed = sc.edges.Proceed || (keys.Proceed && !sc.held.Proceed)
	sc.held = keys
}

// Tick advances the scene by dt seconds and returns the new frame.
func (sc *Scene) Tick(dt float64) (types.FrameState, error) {
	if dt < 0 {
		return types.FrameState{}, fmt.Errorf("%w: %v", ErrNegativeDelta, dt)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if dt > sc.settings.MaxFrameDelta {
		dt = sc.settings.MaxFrameDelta
	}
	now := sc.settings.Clock()
	tick := sc.state.Tick + 1
	ms := now.UTC().UnixMilli()

	// a failed tick leaves bodies, time and counter as they were
	saved := sc.world.Bodies()
	report, err := sc.world.Advance(dt, sc.settings.PhysicsMaxStep)
	if err != nil {
		sc.world.Restore(saved)
		return types.FrameState{}, fmt.Errorf("tick %d: %w", tick, err)
	}

	elapsed := sc.elapsed + dt
	frame, err := sc.seq.Step(chase.Input{Elapsed: elapsed, Now: now, Pressed: sc.edges})
	if err != nil {
		sc.world.Restore(saved)
		return types.FrameState{}, fmt.Errorf("tick %d: %w", tick, err)
	}
	sc.elapsed = elapsed
	sc.edges = types.KeyState{}
	sc.state.Tick = tick

	events := append(sc.pending, physicsEvents(report, tick, ms)...)
	sc.pending = nil
	if tr := frame.Transition; tr != nil {
		events = append(events, transitionEvents(*tr, tick, ms)...)
	}
	sc.publish(dt, events)
	return sc.snapshot(), nil
}

// Reset rebuilds the world and restarts the chase. The tick counter keeps
// counting so replicated frames stay ordered.
func (sc *Scene) Reset() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err := sc.build(); err != nil {
		return err
	}
	sc.held = types.KeyState{}
	sc.edges = types.KeyState{}
	sc.pending = append(sc.pending, types.SceneEvent{
		Type:       EventReset,
		Tick:       sc.state.Tick,
		OccurredMS: sc.settings.Clock().UTC().UnixMilli(),
	})
	sc.publish(0, nil)
	return nil
}

// Snapshot returns a deep copy of state for safe replication.
func (sc *Scene) Snapshot() types.FrameState {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.snapshot()
}

// ChaseState returns the active chase state.
func (sc *Scene) ChaseState() chase.State {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.seq.State()
}

// ID returns the scene identifier.
func (sc *Scene) ID() string {
	return sc.settings.ID
}

func (sc *Scene) snapshot() types.FrameState {
	out := sc.state
	out.Bodies = append([]types.BodyState(nil), sc.state.Bodies...)
	out.Actors = append([]types.ActorState(nil), sc.state.Actors...)
	out.Events = append([]types.SceneEvent(nil), sc.state.Events...)
	return out
}

func (sc *Scene) publish(dt float64, events []types.SceneEvent) {
	bodies := sc.world.Bodies()
	sc.state.Bodies = sc.state.Bodies[:0]
	for i, b := range bodies {
		m, _ := sc.world.Transform(i)
		sc.state.Bodies = append(sc.state.Bodies, types.BodyState{
			Index:     i,
			Position:  types.FromVec(b.Position),
			Velocity:  types.FromVec(b.Velocity),
			Color:     b.Color,
			Transform: m,
		})
	}

	lead, follower, train := sc.poses()
	sc.state.Actors = append(sc.state.Actors[:0], actorState(lead), actorState(follower), actorState(train))
	sc.state.Elapsed = sc.elapsed
	sc.state.Delta = dt
	sc.state.ChaseState = sc.seq.State().String()
	sc.state.Events = append(sc.state.Events[:0], events...)
}

func (sc *Scene) poses() (lead, follower, train chase.Pose) {
	f := sc.seq.Current()
	return f.Lead, f.Follower, f.Train
}

func actorState(p chase.Pose) types.ActorState {
	return types.ActorState{
		Name:      p.Name,
		Model:     p.Model,
		Position:  types.FromVec(p.Position),
		Rotation:  p.Rotation,
		Scale:     types.FromVec(p.Scale),
		Color:     p.Color,
		Transform: p.Transform,
	}
}

func physicsEvents(r physics.StepReport, tick uint64, ms int64) []types.SceneEvent {
	out := make([]types.SceneEvent, 0, len(r.WallHits)+len(r.Contacts))
	for _, h := range r.WallHits {
		out = append(out, types.SceneEvent{
			Type:       EventWallBounce,
			Detail:     fmt.Sprintf("body=%d axis=%s speed=%.3f", h.Body, axisNames[h.Axis], h.Speed),
			Tick:       tick,
			OccurredMS: ms,
		})
	}
	for _, c := range r.Contacts {
		out = append(out, types.SceneEvent{
			Type:       EventCollision,
			Detail:     fmt.Sprintf("bodies=%d,%d impulse=%.3f overlap=%.3f", c.A, c.B, c.Impulse, c.Overlap),
			Tick:       tick,
			OccurredMS: ms,
		})
	}
	return out
}

func transitionEvents(tr chase.Transition, tick uint64, ms int64) []types.SceneEvent {
	out := []types.SceneEvent{{
		Type:       EventStateChange,
		From:       tr.From.String(),
		To:         tr.To.String(),
		Detail:     tr.Cause.String(),
		Tick:       tick,
		OccurredMS: ms,
	}}
	if tr.From == chase.ChoicePoint || tr.From == chase.RedDecision {
		out = append(out, types.SceneEvent{
			Type:       EventDecision,
			From:       tr.From.String(),
			To:         tr.To.String(),
			Detail:     tr.Cause.String(),
			Tick:       tick,
			OccurredMS: ms,
		})
	}
	if tr.To == chase.Finished {
		out = append(out, types.SceneEvent{
			Type:       EventFinished,
			From:       tr.From.String(),
			Tick:       tick,
			OccurredMS: ms,
		})
	}
	return out
}
