package chase

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// minDisplacement is the horizontal movement below which an actor counts as
// stationary for the frame.
const minDisplacement = 1e-9

func horizontal(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v[0], 0, v[2]}
}

// YawDegrees returns the heading of a horizontal direction, 0 along +Z and
// 90 along +X. The result is undefined for a zero vector.
func YawDegrees(dir mgl64.Vec3) float64 {
	return mgl64.RadToDeg(math.Atan2(dir[0], dir[2]))
}

// TurnDegrees returns the signed horizontal angle from prev to cur, positive
// for a counter-clockwise turn seen from +Y.
func TurnDegrees(prev, cur mgl64.Vec3) (float64, error) {
	prev, cur = horizontal(prev), horizontal(cur)
	if prev.Len() < minDisplacement || cur.Len() < minDisplacement {
		return 0, fmt.Errorf("%w: prev=%v cur=%v", ErrZeroDirection, prev, cur)
	}
	cross := prev[2]*cur[0] - prev[0]*cur[2]
	return mgl64.RadToDeg(math.Atan2(cross, prev.Dot(cur))), nil
}

// BankAngle is the visual roll for a turn from prev to cur: twice the turn
// angle, clamped to ±clampDeg.
func BankAngle(prev, cur mgl64.Vec3, clampDeg float64) (float64, error) {
	turn, err := TurnDegrees(prev, cur)
	if err != nil {
		return 0, err
	}
	return clamp(2*turn, -clampDeg, clampDeg), nil
}

// heading derives yaw and bank from consecutive positions. It carries only
// the previous position and the previous direction.
type heading struct {
	prevPos  mgl64.Vec3
	prevDir  mgl64.Vec3
	clampDeg float64
}

func newHeading(start, toward mgl64.Vec3, clampDeg float64) heading {
	dir := horizontal(toward.Sub(start))
	if dir.Len() < minDisplacement {
		dir = mgl64.Vec3{0, 0, 1}
	}
	return heading{prevPos: start, prevDir: dir.Normalize(), clampDeg: clampDeg}
}

// yaw returns the heading held from the last movement.
func (h *heading) yaw() float64 {
	return YawDegrees(h.prevDir)
}

// update consumes the next position. A stationary actor keeps its previous
// direction and does not bank.
func (h *heading) update(pos mgl64.Vec3) (yaw, bank float64) {
	d := horizontal(pos.Sub(h.prevPos))
	h.prevPos = pos
	if d.Len() < minDisplacement {
		return h.yaw(), 0
	}
	dir := d.Normalize()
	// both vectors are non-zero here
	bank, _ = BankAngle(h.prevDir, dir, h.clampDeg)
	h.prevDir = dir
	return YawDegrees(dir), bank
}
