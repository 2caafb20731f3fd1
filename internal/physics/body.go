package physics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"chasescene/internal/shared/types"
)

// DefaultHalfExtent is the half width of a unit cube.
const DefaultHalfExtent = 0.5

// Body is a free cube approximated by a sphere for contacts.
type Body struct {
	Position     mgl64.Vec3
	Velocity     mgl64.Vec3
	Acceleration mgl64.Vec3
	Mass         float64
	Restitution  float64
	// HalfExtent of zero means DefaultHalfExtent.
	HalfExtent float64
	Color      types.Color
}

func (b Body) halfExtent() float64 {
	if b.HalfExtent == 0 {
		return DefaultHalfExtent
	}
	return b.HalfExtent
}

func (b Body) validate(walls mgl64.Vec3) error {
	if !(b.Mass > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidMass, b.Mass)
	}
	if b.Restitution < 0 || b.Restitution > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidRestitution, b.Restitution)
	}
	h := b.halfExtent()
	if h < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidHalfExtent, h)
	}
	for axis := 0; axis < 3; axis++ {
		if walls[axis]-h < 0 {
			return fmt.Errorf("%w: %v exceeds wall %v on axis %d", ErrInvalidHalfExtent, h, walls[axis], axis)
		}
	}
	return nil
}

// DefaultBodies returns the two cubes of the default scene, launched at each
// other along X.
func DefaultBodies() []Body {
	return []Body{
		{
			Position:    mgl64.Vec3{-1, 0, 0},
			Velocity:    mgl64.Vec3{5, 0, 0},
			Mass:        1,
			Restitution: 0.8,
			Color:       types.Color{R: 1},
		},
		{
			Position:    mgl64.Vec3{1, 0, 0},
			Velocity:    mgl64.Vec3{-5, 0, 0},
			Mass:        1,
			Restitution: 0.8,
			Color:       types.Color{B: 1},
		},
	}
}
