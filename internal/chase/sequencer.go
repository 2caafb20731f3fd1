// Package chase drives the scripted pursuit: a lead car fleeing, a follower
// trailing it by a fixed time lag, and a train crossing the final stretch.
//
// The sequencer is a flat state machine stepped once per frame. Each timed
// state moves the cars linearly between two waypoints over a fixed segment
// duration; RedDecision waits for a proceed key and ChoicePoint waits for a
// left or right key, falling through to the straight branch when its
// wall-clock window closes. Orientation is derived from the lead's motion.
package chase

import (
	"fmt"
	"time"

	"chasescene/internal/shared/types"
)

const timeEpsilon = 1e-9

// Input is the snapshot a frame is computed from.
type Input struct {
	// Elapsed is the absolute scene time in seconds. It must not decrease.
	Elapsed float64
	// Now is the wall clock. It times the ChoicePoint window only.
	Now time.Time
	// Pressed holds keys that went down this frame.
	Pressed types.KeyState
}

// Transition describes a state change made by a step.
type Transition struct {
	From  State
	To    State
	Cause Cause
}

// Frame is the output of one step.
type Frame struct {
	State      State
	Lead       Pose
	Follower   Pose
	Train      Pose
	Transition *Transition
}

// View is the read-only surface offered to camera code.
type View interface {
	State() State
	LeadPose() Pose
}

var _ View = (*Sequencer)(nil)

// Sequencer owns the actors, the timers and the current state.
// It is not safe for concurrent use.
type Sequencer struct {
	cfg   Config
	route Route

	state        State
	elapsed      float64
	stateEntry   float64
	trainEntry   float64
	trainRunning bool
	choiceEntry  time.Time

	lead     Actor
	follower Actor
	train    Actor
	heading  heading
}

// NewSequencer validates cfg and places the actors at their start points.
func NewSequencer(cfg Config) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sequencer{cfg: cfg, route: NewRoute(cfg)}
	s.Reset()
	return s, nil
}

// Reset returns to IdleAtStart at scene time zero.
func (s *Sequencer) Reset() {
	wp := s.cfg.Waypoints
	s.state = IdleAtStart
	s.elapsed = 0
	s.stateEntry = 0
	s.trainEntry = 0
	s.trainRunning = false
	s.choiceEntry = time.Time{}

	p := s.route.Evaluate(IdleAtStart, 0, 0, 0)
	s.heading = newHeading(p.Lead, wp.FullLeft, s.cfg.BankClampDegrees)
	s.lead = newActor(s.cfg.Lead, p.Lead, s.heading.yaw())
	s.follower = newActor(s.cfg.Follower, p.Follower, s.heading.yaw())
	s.train = newActor(s.cfg.Train, p.Train, YawDegrees(wp.TrainEnd.Sub(wp.TrainStart)))
}

// State returns the active state.
func (s *Sequencer) State() State {
	return s.state
}

// LeadPose returns the lead actor's current pose.
func (s *Sequencer) LeadPose() Pose {
	return s.lead.pose()
}

// Current returns the latest frame without stepping.
func (s *Sequencer) Current() Frame {
	return s.frame(nil)
}

// Config returns the configuration the sequencer was built with.
func (s *Sequencer) Config() Config {
	return s.cfg
}

// Step advances the chase to in.Elapsed. Once Finished, Step returns the
// final frame unchanged.
func (s *Sequencer) Step(in Input) (Frame, error) {
	if s.state == Finished {
		return s.frame(nil), nil
	}
	if in.Elapsed < s.elapsed {
		return Frame{}, fmt.Errorf("%w: %v after %v", ErrTimeReversed, in.Elapsed, s.elapsed)
	}
	if in.Now.IsZero() {
		return Frame{}, ErrNoClock
	}
	s.elapsed = in.Elapsed

	seg := s.cfg.SegmentDuration
	local := s.elapsed - s.stateEntry
	u := progress(local, seg)
	uf := progress(local-s.cfg.FollowerDelay, seg)
	ut := 0.0
	if s.trainRunning {
		ut = clamp01((s.elapsed - s.trainEntry) / s.cfg.trainDuration())
	}

	expired := false
	if s.state == ChoicePoint {
		window := time.Duration(s.cfg.ChoiceTimeout * float64(time.Second))
		expired = in.Now.Sub(s.choiceEntry) >= window
	}

	s.place(s.route.Evaluate(s.state, u, uf, ut))

	next, cause := Next(s.state, u, in.Pressed, expired)
	if next == s.state {
		return s.frame(nil), nil
	}

	tr := &Transition{From: s.state, To: next, Cause: cause}
	s.enter(next, cause, in)
	return s.frame(tr), nil
}

func (s *Sequencer) enter(next State, cause Cause, in Input) {
	s.state = next
	if cause == CauseTimer {
		// keep the overshoot so segments do not drift by a frame each
		s.stateEntry += s.cfg.SegmentDuration
	} else {
		s.stateEntry = s.elapsed
	}
	switch next {
	case ChoicePoint:
		s.choiceEntry = in.Now
	case BranchStraight:
		s.trainEntry = s.elapsed
		s.trainRunning = true
	}
}

// progress is the normalized time of local seconds into a segment of length
// seg. Times within timeEpsilon of the end count as the end, since elapsed is
// a float sum of frame deltas.
func progress(local, seg float64) float64 {
	if local >= seg-timeEpsilon {
		return 1
	}
	return clamp01(local / seg)
}

func (s *Sequencer) place(p Placement) {
	yaw, bank := s.heading.update(p.Lead)
	s.lead.place(p.Lead, yaw, bank)
	s.follower.place(p.Follower, yaw, 0)
	s.train.place(p.Train, s.train.rotation.Yaw, 0)
}

func (s *Sequencer) frame(tr *Transition) Frame {
	return Frame{
		State:      s.state,
		Lead:       s.lead.pose(),
		Follower:   s.follower.pose(),
		Train:      s.train.pose(),
		Transition: tr,
	}
}
