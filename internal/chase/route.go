package chase

import "github.com/go-gl/mathgl/mgl64"

// Lerp moves linearly from one waypoint to another in the horizontal plane.
// u is clamped to [0,1] and the result sits at the given height.
func Lerp(from, to mgl64.Vec3, u, height float64) mgl64.Vec3 {
	u = clamp01(u)
	return mgl64.Vec3{
		from[0] + (to[0]-from[0])*u,
		height,
		from[2] + (to[2]-from[2])*u,
	}
}

// Placement is where the three actors stand for one frame.
type Placement struct {
	Lead     mgl64.Vec3
	Follower mgl64.Vec3
	Train    mgl64.Vec3
}

// Route maps a state and its timers to actor positions.
type Route struct {
	wp         Waypoints
	holdOffset mgl64.Vec3
	leadY      float64
	followerY  float64
	trainY     float64
}

// NewRoute builds the route described by cfg.
func NewRoute(cfg Config) Route {
	return Route{
		wp:         cfg.Waypoints,
		holdOffset: cfg.FollowerHoldOffset,
		leadY:      cfg.Lead.Height,
		followerY:  cfg.Follower.Height,
		trainY:     cfg.Train.Height,
	}
}

// Segment returns the waypoints the lead and follower travel between in s.
// ok is false for states that do not drive the cars along a segment.
func (r Route) Segment(s State) (from, to mgl64.Vec3, ok bool) {
	wp := r.wp
	switch s {
	case IdleAtStart:
		return wp.Start, wp.FullLeft, true
	case WaitAtRed:
		return wp.FullLeft, wp.RedLight, true
	case ChaseBegin:
		return wp.RedLight, wp.ChaseOrigin, true
	case TurnLeftAtJunction:
		return wp.ChaseOrigin, wp.Junction, true
	case BranchLeft:
		return wp.Junction, wp.Barricade, true
	case BranchStraight:
		return wp.Junction, wp.FinalTurnStart, true
	case FinalCarTurn:
		return wp.FinalTurnStart, wp.FinalTurnEnd, true
	}
	return mgl64.Vec3{}, mgl64.Vec3{}, false
}

// Evaluate places the actors for state s. u and uf are the lead's and the
// follower's normalized segment times, ut is the train's normalized time.
// Finished is not a valid input: the sequencer freezes the last placement.
func (r Route) Evaluate(s State, u, uf, ut float64) Placement {
	p := Placement{Train: Lerp(r.wp.TrainStart, r.wp.TrainEnd, ut, r.trainY)}

	switch s {
	case RedDecision:
		p.Lead = Lerp(r.wp.RedLight, r.wp.RedLight, 0, r.leadY)
		p.Follower = Lerp(r.wp.RedLight, r.wp.RedLight, 0, r.followerY)
		return p
	case ChoicePoint:
		hold := r.wp.Junction.Add(r.holdOffset)
		p.Lead = Lerp(r.wp.Junction, r.wp.Junction, 0, r.leadY)
		p.Follower = Lerp(hold, hold, 0, r.followerY)
		return p
	}

	from, to, _ := r.Segment(s)
	p.Lead = Lerp(from, to, u, r.leadY)
	p.Follower = Lerp(from, to, uf, r.followerY)
	return p
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
