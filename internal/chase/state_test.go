package chase

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chasescene/internal/shared/types"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		u         float64
		pressed   types.KeyState
		expired   bool
		want      State
		wantCause Cause
	}{
		{"idle mid segment", IdleAtStart, 0.5, noKeys, false, IdleAtStart, CauseNone},
		{"idle done", IdleAtStart, 1, noKeys, false, WaitAtRed, CauseTimer},
		{"idle overshoot", IdleAtStart, 1, pressGo, false, WaitAtRed, CauseTimer},
		{"wait done", WaitAtRed, 1, noKeys, false, RedDecision, CauseTimer},
		{"red without proceed", RedDecision, 1, pressBothLR, false, RedDecision, CauseNone},
		{"red proceed", RedDecision, 0, pressGo, false, ChaseBegin, CauseProceed},
		{"chase begin done", ChaseBegin, 1, noKeys, false, TurnLeftAtJunction, CauseTimer},
		{"turn left done", TurnLeftAtJunction, 1, noKeys, false, ChoicePoint, CauseTimer},
		{"choice waiting", ChoicePoint, 1, pressGo, false, ChoicePoint, CauseNone},
		{"choice left", ChoicePoint, 0, pressLeft, false, BranchLeft, CauseLeft},
		{"choice right", ChoicePoint, 0, pressRight, false, BranchStraight, CauseRight},
		{"choice both", ChoicePoint, 0, pressBothLR, false, BranchLeft, CauseLeft},
		{"choice left beats timeout", ChoicePoint, 0, pressLeft, true, BranchLeft, CauseLeft},
		{"choice timeout", ChoicePoint, 0, noKeys, true, BranchStraight, CauseTimeout},
		{"branch left done", BranchLeft, 1, noKeys, false, Finished, CauseTimer},
		{"branch straight done", BranchStraight, 1, noKeys, false, FinalCarTurn, CauseTimer},
		{"final turn done", FinalCarTurn, 1, noKeys, false, Finished, CauseTimer},
		{"finished", Finished, 1, pressBothLR, true, Finished, CauseNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cause := Next(tt.state, tt.u, tt.pressed, tt.expired)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCause, cause)
		})
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle_at_start", IdleAtStart.String())
	assert.Equal(t, "choice_point", ChoicePoint.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "unknown", State(200).String())
	assert.Equal(t, "timeout", CauseTimeout.String())
	assert.Equal(t, "none", CauseNone.String())
}

func TestRouteCoversEveryTimedState(t *testing.T) {
	r := NewRoute(DefaultConfig())
	for s := IdleAtStart; s <= Finished; s++ {
		_, _, ok := r.Segment(s)
		assert.Equal(t, s.Timed(), ok, "state %s", s)
	}
}

func TestLerpClampsAndKeepsHeight(t *testing.T) {
	from, to := mgl64.Vec3{0, 9, 0}, mgl64.Vec3{10, -9, -10}
	assertVecNear(t, mgl64.Vec3{5, 2, -5}, Lerp(from, to, 0.5, 2))
	assertVecNear(t, mgl64.Vec3{0, 2, 0}, Lerp(from, to, -1, 2))
	assertVecNear(t, mgl64.Vec3{10, 2, -10}, Lerp(from, to, 3, 2))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero segment", func(c *Config) { c.SegmentDuration = 0 }, ErrInvalidDuration},
		{"negative choice", func(c *Config) { c.ChoiceTimeout = -1 }, ErrInvalidDuration},
		{"negative train", func(c *Config) { c.TrainDuration = -1 }, ErrInvalidDuration},
		{"negative delay", func(c *Config) { c.FollowerDelay = -0.1 }, ErrInvalidFollowerDelay},
		{"delay a full segment", func(c *Config) { c.FollowerDelay = c.SegmentDuration }, ErrInvalidFollowerDelay},
		{"zero bank clamp", func(c *Config) { c.BankClampDegrees = 0 }, ErrInvalidBankClamp},
		{"flat train", func(c *Config) { c.Train.Scale = mgl64.Vec3{1, 0, 1} }, ErrInvalidScale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestTrainDurationDefaultsToTwoSegments(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*cfg.SegmentDuration, cfg.trainDuration())
	cfg.TrainDuration = 3
	assert.Equal(t, 3.0, cfg.trainDuration())
}
