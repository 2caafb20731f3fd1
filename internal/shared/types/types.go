package types

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 represents a position or vector in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FromVec converts a math vector into its replicated form.
func FromVec(v mgl64.Vec3) Vec3 {
	return Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// Vec returns the math form of v.
func (v Vec3) Vec() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// Rotator stores orientation in degrees.
type Rotator struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Color is a linear RGB display color in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// KeyState is the held state of the keys the scene reacts to.
type KeyState struct {
	Left    bool `json:"left"`
	Right   bool `json:"right"`
	Proceed bool `json:"proceed"`
}

// Any reports whether at least one key is set.
func (k KeyState) Any() bool {
	return k.Left || k.Right || k.Proceed
}

// BodyState is the replicated state for a free body of the cube simulation.
type BodyState struct {
	Index     int        `json:"index"`
	Position  Vec3       `json:"position"`
	Velocity  Vec3       `json:"velocity"`
	Color     Color      `json:"color"`
	Transform mgl64.Mat4 `json:"transform"`
}

// ActorState is the replicated pose of one chase actor.
type ActorState struct {
	Name      string     `json:"name"`
	Model     string     `json:"model"`
	Position  Vec3       `json:"position"`
	Rotation  Rotator    `json:"rotation"`
	Scale     Vec3       `json:"scale"`
	Color     Color      `json:"color"`
	Transform mgl64.Mat4 `json:"transform"`
}

// FrameState is replicated to all clients once per scene tick.
type FrameState struct {
	SceneID    string       `json:"scene_id"`
	Tick       uint64       `json:"tick"`
	CreatedAt  time.Time    `json:"created_at"`
	Elapsed    float64      `json:"elapsed"`
	Delta      float64      `json:"delta"`
	ChaseState string       `json:"chase_state"`
	Bodies     []BodyState  `json:"bodies"`
	Actors     []ActorState `json:"actors"`
	Events     []SceneEvent `json:"events"`
}

// SceneEvent tracks state changes worth UI/audio feedback.
type SceneEvent struct {
	Type       string `json:"type"` // state_change|decision|finished|wall_bounce|collision|reset
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Tick       uint64 `json:"tick"`
	OccurredMS int64  `json:"occurred_ms"`
}

// ClientEnvelope is sent from client to server.
type ClientEnvelope struct {
	Type string    `json:"type"` // input|ping|reset
	Keys *KeyState `json:"keys,omitempty"`
}

// ServerEnvelope is sent from server to client.
type ServerEnvelope struct {
	Type     string      `json:"type"` // welcome|frame|pong|error
	Tick     uint64      `json:"tick,omitempty"`
	Frame    *FrameState `json:"frame,omitempty"`
	ServerMS int64       `json:"server_ms,omitempty"`
	Message  string      `json:"message,omitempty"`
}
