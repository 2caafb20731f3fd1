package chase

import (
	"github.com/go-gl/mathgl/mgl64"

	"chasescene/internal/shared/types"
)

// Actor is a drawable moved by the sequencer. Model, scale and color are
// fixed at construction.
type Actor struct {
	name  string
	model string
	scale mgl64.Vec3
	color types.Color

	position mgl64.Vec3
	rotation types.Rotator
}

func newActor(spec ActorSpec, pos mgl64.Vec3, yaw float64) Actor {
	return Actor{
		name:     spec.Name,
		model:    spec.Model,
		scale:    spec.Scale,
		color:    spec.Color,
		position: pos,
		rotation: types.Rotator{Yaw: yaw},
	}
}

func (a *Actor) Name() string            { return a.name }
func (a *Actor) Model() string           { return a.model }
func (a *Actor) Scale() mgl64.Vec3       { return a.scale }
func (a *Actor) Color() types.Color      { return a.color }
func (a *Actor) Position() mgl64.Vec3    { return a.position }
func (a *Actor) Rotation() types.Rotator { return a.rotation }

func (a *Actor) place(pos mgl64.Vec3, yaw, bank float64) {
	a.position = pos
	a.rotation = types.Rotator{Pitch: 0, Yaw: yaw, Roll: bank}
}

// Pose is a read-only copy of an actor for one frame.
type Pose struct {
	Name      string
	Model     string
	Position  mgl64.Vec3
	Rotation  types.Rotator
	Scale     mgl64.Vec3
	Color     types.Color
	Transform mgl64.Mat4
}

func (a *Actor) pose() Pose {
	return Pose{
		Name:      a.name,
		Model:     a.model,
		Position:  a.position,
		Rotation:  a.rotation,
		Scale:     a.scale,
		Color:     a.color,
		Transform: WorldTransform(a.position, a.rotation, a.scale),
	}
}

// WorldTransform builds translate × rotX(pitch) × rotY(yaw) × rotZ(roll) × scale.
func WorldTransform(pos mgl64.Vec3, rot types.Rotator, scale mgl64.Vec3) mgl64.Mat4 {
	return mgl64.Translate3D(pos[0], pos[1], pos[2]).
		Mul4(mgl64.HomogRotate3DX(mgl64.DegToRad(rot.Pitch))).
		Mul4(mgl64.HomogRotate3DY(mgl64.DegToRad(rot.Yaw))).
		Mul4(mgl64.HomogRotate3DZ(mgl64.DegToRad(rot.Roll))).
		Mul4(mgl64.Scale3D(scale[0], scale[1], scale[2]))
}
