package scene

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"chasescene/internal/chase"
	"chasescene/internal/shared/types"
)

const testDT = 0.125

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestScene(t *testing.T) (*Scene, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)}
	s := DefaultSettings()
	s.ID = "test"
	s.MaxFrameDelta = 0.25
	s.Clock = clk.Now
	sc, err := New(s)
	if err != nil {
		t.Fatalf("new scene: %v", err)
	}
	return sc, clk
}

func tick(t *testing.T, sc *Scene, clk *fakeClock) types.FrameState {
	t.Helper()
	clk.Advance(time.Duration(testDT * float64(time.Second)))
	f, err := sc.Tick(testDT)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	return f
}

func tickUntil(t *testing.T, sc *Scene, clk *fakeClock, want chase.State) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if sc.ChaseState() == want {
			return
		}
		tick(t, sc, clk)
	}
	t.Fatalf("never reached %s, stuck in %s", want, sc.ChaseState())
}

func hasEvent(f types.FrameState, typ string) (types.SceneEvent, bool) {
	for _, ev := range f.Events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return types.SceneEvent{}, false
}

func TestNewSceneStartsIdle(t *testing.T) {
	sc, _ := newTestScene(t)
	f := sc.Snapshot()
	if f.ChaseState != "idle_at_start" {
		t.Fatalf("expected idle_at_start, got=%s", f.ChaseState)
	}
	if len(f.Bodies) != 2 || len(f.Actors) != 3 {
		t.Fatalf("expected 2 bodies and 3 actors, got=%d/%d", len(f.Bodies), len(f.Actors))
	}
	if f.Actors[0].Name != "lead" || f.Actors[1].Name != "follower" || f.Actors[2].Name != "train" {
		t.Fatalf("unexpected actor order: %+v", f.Actors)
	}
	if f.SceneID != "test" {
		t.Fatalf("expected scene id test, got=%s", f.SceneID)
	}
}

func TestTickAdvancesElapsedAndTick(t *testing.T) {
	sc, clk := newTestScene(t)
	for iter := 0; iter < 4; iter++ {
		tick(t, sc, clk)
	}
	f := sc.Snapshot()
	if f.Tick != 4 {
		t.Fatalf("expected tick 4, got=%d", f.Tick)
	}
	if f.Elapsed != 0.5 || f.Delta != testDT {
		t.Fatalf("expected elapsed 0.5 delta %v, got=%v/%v", testDT, f.Elapsed, f.Delta)
	}
}

func TestTickClampsLargeDelta(t *testing.T) {
	sc, _ := newTestScene(t)
	f, err := sc.Tick(10)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.Delta != 0.25 || f.Elapsed != 0.25 {
		t.Fatalf("expected delta clamped to 0.25, got delta=%v elapsed=%v", f.Delta, f.Elapsed)
	}
}

func TestTickRejectsNegativeDelta(t *testing.T) {
	sc, _ := newTestScene(t)
	if _, err := sc.Tick(-0.1); !errors.Is(err, ErrNegativeDelta) {
		t.Fatalf("expected ErrNegativeDelta, got=%v", err)
	}
	if sc.Snapshot().Tick != 0 {
		t.Fatal("rejected tick must not advance the counter")
	}
}

func TestSegmentsEndOnTimeAtSixtyHertz(t *testing.T) {
	sc, clk := newTestScene(t)
	const dt = 1.0 / 60.0
	wp := chase.DefaultConfig().Waypoints

	var changes []uint64
	for iter := 0; iter < 480; iter++ {
		clk.Advance(time.Second / 60)
		f, err := sc.Tick(dt)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if ev, ok := hasEvent(f, EventStateChange); ok {
			changes = append(changes, ev.Tick)
			if ev.To == "wait_at_red" {
				lead := f.Actors[0].Position
				if math.Abs(lead.X-wp.FullLeft.X()) > 1e-9 || math.Abs(lead.Z-wp.FullLeft.Z()) > 1e-9 {
					t.Fatalf("expected lead at full left on the transition, got=%+v", lead)
				}
			}
		}
	}
	if len(changes) != 2 || changes[0] != 240 || changes[1] != 480 {
		t.Fatalf("expected state changes on ticks 240 and 480, got=%v", changes)
	}
	if sc.ChaseState() != chase.RedDecision {
		t.Fatalf("expected red_decision, got=%s", sc.ChaseState())
	}
}

func TestFailedTickLeavesSceneUntouched(t *testing.T) {
	sc, clk := newTestScene(t)
	tick(t, sc, clk)
	before := sc.Snapshot()

	stopped := clk.Now()
	clk.mu.Lock()
	clk.now = time.Time{}
	clk.mu.Unlock()
	if _, err := sc.Tick(testDT); !errors.Is(err, chase.ErrNoClock) {
		t.Fatalf("expected ErrNoClock, got=%v", err)
	}

	after := sc.Snapshot()
	if after.Tick != before.Tick || after.Elapsed != before.Elapsed {
		t.Fatalf("failed tick advanced the scene: tick %d->%d elapsed %v->%v",
			before.Tick, after.Tick, before.Elapsed, after.Elapsed)
	}
	for i := range before.Bodies {
		if after.Bodies[i].Position != before.Bodies[i].Position || after.Bodies[i].Velocity != before.Bodies[i].Velocity {
			t.Fatalf("body %d moved on a failed tick: %+v -> %+v", i, before.Bodies[i], after.Bodies[i])
		}
	}

	clk.mu.Lock()
	clk.now = stopped
	clk.mu.Unlock()
	f := tick(t, sc, clk)
	if f.Tick != before.Tick+1 {
		t.Fatalf("expected tick %d after recovery, got=%d", before.Tick+1, f.Tick)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	sc, clk := newTestScene(t)
	tick(t, sc, clk)
	snap := sc.Snapshot()
	snap.Bodies[0].Position.X = 999999
	snap.Actors[0].Position.Z = 999999
	if len(snap.Events) > 0 {
		snap.Events[0].Type = "mutated"
	}

	snap2 := sc.Snapshot()
	if snap2.Bodies[0].Position.X == 999999 || snap2.Actors[0].Position.Z == 999999 {
		t.Fatal("scene state mutated through snapshot")
	}
	for _, ev := range snap2.Events {
		if ev.Type == "mutated" {
			t.Fatal("scene events mutated through snapshot")
		}
	}
}

func TestCubesCollideAndBounce(t *testing.T) {
	sc, clk := newTestScene(t)
	var collided, bounced bool
	for iter := 0; iter < 40; iter++ {
		f := tick(t, sc, clk)
		if _, ok := hasEvent(f, EventCollision); ok {
			collided = true
		}
		if ev, ok := hasEvent(f, EventWallBounce); ok {
			bounced = true
			if !strings.Contains(ev.Detail, "axis=x") {
				t.Fatalf("expected a bounce on x, got=%s", ev.Detail)
			}
		}
		for _, b := range f.Bodies {
			if b.Position.X > 2.0+1e-9 || b.Position.X < -2.0-1e-9 {
				t.Fatalf("body %d left the room: %+v", b.Index, b.Position)
			}
		}
	}
	if !collided || !bounced {
		t.Fatalf("expected collision and wall bounce, got collided=%v bounced=%v", collided, bounced)
	}
}

func TestHeldKeyFiresOnce(t *testing.T) {
	sc, clk := newTestScene(t)
	sc.ApplyInput(types.KeyState{Proceed: true})
	tickUntil(t, sc, clk, chase.RedDecision)

	// still held, no new edge
	for iter := 0; iter < 20; iter++ {
		tick(t, sc, clk)
	}
	if sc.ChaseState() != chase.RedDecision {
		t.Fatalf("held key must not re-trigger, got=%s", sc.ChaseState())
	}

	sc.ApplyInput(types.KeyState{})
	sc.ApplyInput(types.KeyState{Proceed: true})
	f := tick(t, sc, clk)
	if f.ChaseState != "chase_begin" {
		t.Fatalf("expected chase_begin after a fresh press, got=%s", f.ChaseState)
	}
	ev, ok := hasEvent(f, EventDecision)
	if !ok || ev.Detail != "proceed" {
		t.Fatalf("expected proceed decision event, got=%+v", f.Events)
	}
}

func TestTapBetweenTicksIsNotLost(t *testing.T) {
	sc, clk := newTestScene(t)
	tickUntil(t, sc, clk, chase.RedDecision)

	sc.ApplyInput(types.KeyState{Proceed: true})
	sc.ApplyInput(types.KeyState{})
	tick(t, sc, clk)
	if sc.ChaseState() != chase.ChaseBegin {
		t.Fatalf("expected tap to proceed, got=%s", sc.ChaseState())
	}
}

func driveToChoice(t *testing.T, sc *Scene, clk *fakeClock) {
	t.Helper()
	tickUntil(t, sc, clk, chase.RedDecision)
	sc.ApplyInput(types.KeyState{Proceed: true})
	sc.ApplyInput(types.KeyState{})
	tickUntil(t, sc, clk, chase.ChoicePoint)
}

func TestChoiceTimeoutFollowsWallClock(t *testing.T) {
	sc, clk := newTestScene(t)
	driveToChoice(t, sc, clk)

	clk.Advance(6 * time.Second)
	f, err := sc.Tick(0)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.ChaseState != "branch_straight" {
		t.Fatalf("expected branch_straight after timeout, got=%s", f.ChaseState)
	}
	ev, ok := hasEvent(f, EventDecision)
	if !ok || ev.Detail != "timeout" || ev.To != "branch_straight" {
		t.Fatalf("expected timeout decision event, got=%+v", f.Events)
	}
}

func TestLeftChoiceFinishesAtBarricade(t *testing.T) {
	sc, clk := newTestScene(t)
	driveToChoice(t, sc, clk)
	sc.ApplyInput(types.KeyState{Left: true, Right: true})
	f := tick(t, sc, clk)
	if f.ChaseState != "branch_left" {
		t.Fatalf("expected branch_left, got=%s", f.ChaseState)
	}

	var finished bool
	for iter := 0; iter < 40; iter++ {
		f = tick(t, sc, clk)
		if _, ok := hasEvent(f, EventFinished); ok {
			finished = true
		}
	}
	if !finished || f.ChaseState != "finished" {
		t.Fatalf("expected finished event, state=%s", f.ChaseState)
	}
	want := chase.DefaultConfig().Waypoints.Barricade
	if got := f.Actors[0].Position; got.X != want[0] || got.Z != want[2] {
		t.Fatalf("expected lead at barricade %v, got=%+v", want, got)
	}
}

func TestResetRestartsChase(t *testing.T) {
	sc, clk := newTestScene(t)
	tickUntil(t, sc, clk, chase.RedDecision)
	before := sc.Snapshot().Tick

	if err := sc.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	snap := sc.Snapshot()
	if snap.ChaseState != "idle_at_start" || snap.Elapsed != 0 {
		t.Fatalf("expected fresh chase, got state=%s elapsed=%v", snap.ChaseState, snap.Elapsed)
	}
	if snap.Bodies[0].Position.X != -1 {
		t.Fatalf("expected bodies back at spawn, got=%+v", snap.Bodies[0].Position)
	}

	f := tick(t, sc, clk)
	if f.Tick != before+1 {
		t.Fatalf("expected tick to keep counting, got=%d want=%d", f.Tick, before+1)
	}
	if _, ok := hasEvent(f, EventReset); !ok {
		t.Fatalf("expected reset event, got=%+v", f.Events)
	}
}

func TestConcurrentTickAndSnapshot(t *testing.T) {
	sc, clk := newTestScene(t)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for iter := 0; iter < 200; iter++ {
			clk.Advance(time.Second / 120)
			if _, err := sc.Tick(1.0 / 120.0); err != nil {
				t.Errorf("tick: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for iter := 0; iter < 200; iter++ {
			_ = sc.Snapshot()
			sc.ApplyInput(types.KeyState{Proceed: true})
		}
	}()
	wg.Wait()
	if sc.Snapshot().Tick != 200 {
		t.Fatalf("expected 200 ticks, got=%d", sc.Snapshot().Tick)
	}
}
