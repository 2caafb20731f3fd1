package chase

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"chasescene/internal/shared/types"
)

var (
	ErrInvalidDuration      = errors.New("chase: durations must be positive")
	ErrInvalidFollowerDelay = errors.New("chase: follower delay must be within [0, segment duration)")
	ErrInvalidBankClamp     = errors.New("chase: bank clamp must be positive")
	ErrInvalidScale         = errors.New("chase: actor scale must be non-zero on every axis")
	ErrZeroDirection        = errors.New("chase: zero-length direction")
	ErrTimeReversed         = errors.New("chase: elapsed time went backwards")
	ErrNoClock              = errors.New("chase: input carries no wall clock")
)

// Waypoints are the fixed points the actors travel between. Only X and Z are
// interpolated; each actor keeps its own height.
type Waypoints struct {
	Start          mgl64.Vec3
	FullLeft       mgl64.Vec3
	RedLight       mgl64.Vec3
	ChaseOrigin    mgl64.Vec3
	Junction       mgl64.Vec3
	Barricade      mgl64.Vec3
	TrainStart     mgl64.Vec3
	TrainEnd       mgl64.Vec3
	FinalTurnStart mgl64.Vec3
	FinalTurnEnd   mgl64.Vec3
}

// ActorSpec is the immutable description of one actor.
type ActorSpec struct {
	Name   string
	Model  string
	Height float64
	Scale  mgl64.Vec3
	Color  types.Color
}

// Config holds every tunable of the sequencer. Times are in seconds.
type Config struct {
	Waypoints       Waypoints
	SegmentDuration float64
	FollowerDelay   float64
	ChoiceTimeout   float64
	// TrainDuration spans BranchStraight and FinalCarTurn; zero means two segments.
	TrainDuration    float64
	BankClampDegrees float64
	// FollowerHoldOffset is added to the junction while waiting at ChoicePoint.
	FollowerHoldOffset mgl64.Vec3

	Lead     ActorSpec
	Follower ActorSpec
	Train    ActorSpec
}

// DefaultConfig returns the stock night-chase layout.
func DefaultConfig() Config {
	return Config{
		Waypoints: Waypoints{
			Start:          mgl64.Vec3{0, 0, -40},
			FullLeft:       mgl64.Vec3{-6, 0, -30},
			RedLight:       mgl64.Vec3{-6, 0, -15},
			ChaseOrigin:    mgl64.Vec3{-6, 0, 0},
			Junction:       mgl64.Vec3{-6, 0, 20},
			Barricade:      mgl64.Vec3{-26, 0, 20},
			TrainStart:     mgl64.Vec3{-60, 0, 34},
			TrainEnd:       mgl64.Vec3{60, 0, 34},
			FinalTurnStart: mgl64.Vec3{-6, 0, 40},
			FinalTurnEnd:   mgl64.Vec3{14, 0, 40},
		},
		SegmentDuration:    4,
		FollowerDelay:      0.75,
		ChoiceTimeout:      5,
		BankClampDegrees:   25,
		FollowerHoldOffset: mgl64.Vec3{0, 0, -4},
		Lead: ActorSpec{
			Name:   "lead",
			Model:  "models/getaway_car.obj",
			Height: 0.5,
			Scale:  mgl64.Vec3{1, 1, 1},
			Color:  types.Color{R: 0.85, G: 0.1, B: 0.1},
		},
		Follower: ActorSpec{
			Name:   "follower",
			Model:  "models/police_car.obj",
			Height: 3,
			Scale:  mgl64.Vec3{1, 1, 1},
			Color:  types.Color{R: 0.1, G: 0.2, B: 0.9},
		},
		Train: ActorSpec{
			Name:   "train",
			Model:  "models/train.obj",
			Height: 1.5,
			Scale:  mgl64.Vec3{2, 2, 6},
			Color:  types.Color{R: 0.6, G: 0.6, B: 0.6},
		},
	}
}

func (c Config) trainDuration() float64 {
	if c.TrainDuration == 0 {
		return 2 * c.SegmentDuration
	}
	return c.TrainDuration
}

// Validate checks the invariants the sequencer relies on.
func (c Config) Validate() error {
	if !(c.SegmentDuration > 0) || !(c.ChoiceTimeout > 0) || c.TrainDuration < 0 {
		return fmt.Errorf("%w: segment=%v choice=%v train=%v",
			ErrInvalidDuration, c.SegmentDuration, c.ChoiceTimeout, c.TrainDuration)
	}
	if c.FollowerDelay < 0 || c.FollowerDelay >= c.SegmentDuration {
		return fmt.Errorf("%w: got %v", ErrInvalidFollowerDelay, c.FollowerDelay)
	}
	if !(c.BankClampDegrees > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidBankClamp, c.BankClampDegrees)
	}
	for _, a := range []ActorSpec{c.Lead, c.Follower, c.Train} {
		if a.Scale[0] == 0 || a.Scale[1] == 0 || a.Scale[2] == 0 {
			return fmt.Errorf("actor %q: %w", a.Name, ErrInvalidScale)
		}
	}
	return nil
}
